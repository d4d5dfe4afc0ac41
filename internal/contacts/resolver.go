// Package contacts resolves remote platform users by id or name.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/memohai/facebot/internal/channel"
)

var (
	// ErrNotFriend means the resolved user is not in the account's friend list.
	ErrNotFriend = errors.New("user is not your friend")
	// ErrLookup means no user matched the query.
	ErrLookup = errors.New("user lookup failed")
)

var numericID = regexp.MustCompile(`^\d+$`)

// Directory is the part of a remote session used for user queries.
type Directory interface {
	SearchUsers(ctx context.Context, name string) ([]channel.UserMatch, error)
	UserInfo(ctx context.Context, ids ...string) (map[string]channel.Profile, error)
	FriendsList(ctx context.Context) ([]channel.Friend, error)
}

// Contact is a resolved remote user.
type Contact struct {
	ID         string
	Name       string
	FirstName  string
	Vanity     string
	ProfileURL string
	IsFriend   bool
}

// Resolve finds the user named by query. A pure-digit query is used as the id directly;
// anything else goes through a name search and the first match wins.
func Resolve(ctx context.Context, dir Directory, query string, allowNonFriends bool) (Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Contact{}, fmt.Errorf("%w: no name given", ErrLookup)
	}

	id := query
	if !numericID.MatchString(query) {
		matches, err := dir.SearchUsers(ctx, query)
		if err != nil {
			return Contact{}, fmt.Errorf("%w: search %q: %v", ErrLookup, query, err)
		}
		if len(matches) == 0 || matches[0].UserID == "" {
			return Contact{}, fmt.Errorf("%w: no user found named %q", ErrLookup, query)
		}
		id = matches[0].UserID.String()
	}

	profiles, err := dir.UserInfo(ctx, id)
	if err != nil {
		return Contact{}, fmt.Errorf("%w: fetch profile %s: %v", ErrLookup, id, err)
	}
	profile, ok := profiles[id]
	if !ok {
		return Contact{}, fmt.Errorf("%w: no profile for id %s", ErrLookup, id)
	}
	if !profile.IsFriend && !allowNonFriends {
		return Contact{}, fmt.Errorf("%w: %s", ErrNotFriend, profile.Name)
	}

	return Contact{
		ID:         id,
		Name:       profile.Name,
		FirstName:  profile.FirstName,
		Vanity:     profile.Vanity,
		ProfileURL: profile.ProfileURL,
		IsFriend:   profile.IsFriend,
	}, nil
}

// SearchFriends returns friends whose full name contains substr, ignoring case.
func SearchFriends(ctx context.Context, dir Directory, substr string) ([]channel.Friend, error) {
	friends, err := dir.FriendsList(ctx)
	if err != nil {
		return nil, fmt.Errorf("friends list: %w", err)
	}
	needle := strings.ToLower(strings.TrimSpace(substr))
	var out []channel.Friend
	for _, f := range friends {
		if !f.IsFriend {
			continue
		}
		if strings.Contains(strings.ToLower(f.FullName), needle) {
			out = append(out, f)
		}
	}
	return out, nil
}
