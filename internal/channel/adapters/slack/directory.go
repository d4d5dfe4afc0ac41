package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/memohai/facebot/internal/channel"
)

const pageLimit = 200

// LookupUser finds a workspace account by its handle. The user list is cached and refreshed
// on a miss.
func (a *Adapter) LookupUser(ctx context.Context, name string) (channel.User, error) {
	a.mu.RLock()
	u, ok := a.users[name]
	a.mu.RUnlock()
	if ok {
		return u, nil
	}

	list, err := a.api.GetUsersContext(ctx)
	if err != nil {
		return channel.User{}, fmt.Errorf("slack list users: %w", err)
	}
	users := make(map[string]channel.User, len(list))
	for _, su := range list {
		if su.Deleted {
			continue
		}
		users[su.Name] = channel.User{ID: su.ID, Name: su.Name}
	}
	a.mu.Lock()
	a.users = users
	a.mu.Unlock()

	if u, ok = users[name]; !ok {
		return channel.User{}, fmt.Errorf("%w: %s", channel.ErrUserNotFound, name)
	}
	return u, nil
}

// ListGroups returns the private channels the bot belongs to.
func (a *Adapter) ListGroups(ctx context.Context) ([]channel.Group, error) {
	var groups []channel.Group
	params := &slackapi.GetConversationsParameters{
		Types:           []string{"private_channel"},
		ExcludeArchived: true,
		Limit:           pageLimit,
	}
	for {
		page, cursor, err := a.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("slack list conversations: %w", err)
		}
		for _, ch := range page {
			groups = append(groups, channel.Group{ID: ch.ID, Name: ch.Name, Members: ch.Members})
		}
		if cursor == "" {
			return groups, nil
		}
		params.Cursor = cursor
	}
}

// GroupMembers returns the member ids of a private channel. Public channels, DMs and
// multi-party DMs yield channel.ErrNotGroup.
func (a *Adapter) GroupMembers(ctx context.Context, channelID string) ([]string, error) {
	info, err := a.api.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return nil, fmt.Errorf("slack conversation info: %w", err)
	}
	if !info.IsPrivate || info.IsIM || info.IsMpIM {
		return nil, channel.ErrNotGroup
	}

	var members []string
	params := &slackapi.GetUsersInConversationParameters{ChannelID: channelID, Limit: pageLimit}
	for {
		page, cursor, err := a.api.GetUsersInConversationContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("slack conversation members: %w", err)
		}
		members = append(members, page...)
		if cursor == "" {
			return members, nil
		}
		params.Cursor = cursor
	}
}
