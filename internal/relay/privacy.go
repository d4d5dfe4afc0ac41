package relay

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotAGroupChannel means the channel membership could not be read as a private group.
var ErrNotAGroupChannel = errors.New("not a group channel")

// IsExactMembership reports whether every member of channelID is one of required.
// Required users that are absent do not disqualify the channel.
func (b *Bridge) IsExactMembership(ctx context.Context, channelID string, required ...string) (bool, error) {
	members, err := b.workspace.GroupMembers(ctx, channelID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotAGroupChannel, err)
	}
	return onlyContains(members, required), nil
}

func onlyContains(members, allowed []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	for _, m := range members {
		if _, ok := set[m]; !ok {
			return false
		}
	}
	return true
}

// isPrivate runs the guard with the bot and the operator as the allowed members.
func (b *Bridge) isPrivate(ctx context.Context, channelID string) (bool, error) {
	return b.IsExactMembership(ctx, channelID, b.allowedMembers()...)
}
