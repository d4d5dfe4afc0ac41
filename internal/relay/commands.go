package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/memohai/facebot/internal/channel"
	"github.com/memohai/facebot/internal/contacts"
	"github.com/memohai/facebot/internal/event"
	"github.com/memohai/facebot/internal/links"
)

const (
	replyLinked        = "Chat messages between you and %s are now synced in this channel."
	replyLinkFailed    = "Unable to connect the chat: %s"
	replyNotPrivate    = "The channel should only contain you and me."
	replyNotGroup      = "This is not a group channel."
	replyAlreadyLinked = "This channel is already connected to %s, unlink it first."
	replyNotFriend     = "%s is not your friend. Try `@%s friends <partial name>` to find their id or vanity name."
	replyUnlinked      = "This channel is no longer connected to Facebook Messenger"
	replyNotLinked     = "This channel is not connected to any Facebook friends"
	replyNoLinks       = "There are currently no facebook chats linked to slack channels."
	replyListLine      = "*%s* is linked with *%s*"
	replyFriendLine    = "%s *vanity:* %s *userID:* %s"
	replyConnected     = "Facebook is currently *connected*"
	replyDisconnected  = "Facebook is currently *not connected*"
)

var helpLines = []string{
	"`@%[1]s help`: See this text",
	"`@%[1]s chat <friend name>`: Connect a private channel with a facebook friend",
	"`@%[1]s unlink`: Disconnects the current channel from facebook messages",
	"`@%[1]s status`: Show facebook connectivity status",
	"`@%[1]s list`: Shows information about linked chats",
	"`@%[1]s friends <name>`: Display friends who's name contains <name> and their id info",
	"_Note: In this Direct Message channel you can send commands without @mentioning %[1]s. For example:_",
	"`list`: list the linked chats in the current channel",
}

// Command is a parsed administrative command.
type Command struct {
	Name string
	Args string
}

var mentionPrefix = regexp.MustCompile(`^<@([A-Z0-9]+)(?:\|[^>]*)?>[:,]?`)

// ParseCommand extracts a command addressed to botID. Outside direct messages the text must
// start with the bot mention; inside them the bare text is the command.
func ParseCommand(ev channel.WorkspaceEvent, botID string) (Command, bool) {
	text := strings.TrimSpace(ev.Text)
	var rest string
	if m := mentionPrefix.FindStringSubmatch(text); m != nil && m[1] == botID {
		rest = text[len(m[0]):]
	} else if ev.IsDirectMessage() {
		rest = text
	} else {
		return Command{}, false
	}

	name, args, _ := strings.Cut(strings.TrimSpace(rest), " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Command{}, false
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}, true
}

func (b *Bridge) dispatchCommand(ctx context.Context, ev channel.WorkspaceEvent) {
	if !isChatMessage(ev) || b.isFromBot(ev) {
		return
	}
	cmd, ok := ParseCommand(ev, b.botID())
	if !ok {
		return
	}
	b.logger.Info("command", slog.String("command", cmd.Name), slog.String("channel", ev.Channel), slog.String("user", ev.User))

	switch cmd.Name {
	case "chat":
		b.cmdChat(ctx, ev.Channel, cmd.Args)
	case "unlink":
		b.cmdUnlink(ctx, ev.Channel)
	case "list":
		b.cmdList(ctx, ev.Channel)
	case "friends":
		b.cmdFriends(ctx, ev.Channel, cmd.Args)
	case "status":
		b.cmdStatus(ctx, ev.Channel)
	case "help":
		b.reply(ctx, ev.Channel, fmt.Sprintf(strings.Join(helpLines, "\n"), b.cfg.BotName))
	}
}

func (b *Bridge) cmdChat(ctx context.Context, channelID, name string) {
	link, err := b.linkChannel(ctx, channelID, name)
	if err != nil {
		b.logger.Warn("chat command failed", slog.String("channel", channelID), slog.Any("error", err))
		b.reply(ctx, channelID, fmt.Sprintf(replyLinkFailed, b.describeLinkError(err, name)))
		return
	}
	b.publish(event.TypeLinksChanged)
	b.reply(ctx, channelID, fmt.Sprintf(replyLinked, link.RemoteDisplayName))
}

func (b *Bridge) linkChannel(ctx context.Context, channelID, name string) (links.Link, error) {
	private, err := b.isPrivate(ctx, channelID)
	if err != nil {
		return links.Link{}, err
	}
	if !private {
		return links.Link{}, errNotPrivate
	}
	if existing := b.table.FindAllByChannel(channelID); len(existing) > 0 {
		return links.Link{}, &alreadyLinkedError{name: existing[0].RemoteDisplayName}
	}
	session := b.currentSession()
	if session == nil {
		return links.Link{}, errNotConnected
	}
	contact, err := contacts.Resolve(ctx, session, name, false)
	if err != nil {
		return links.Link{}, err
	}
	link := links.New(channelID, contact.ID, contact.Name)
	if err := b.table.Add(link); err != nil {
		if errors.Is(err, links.ErrChannelLinked) {
			return links.Link{}, &alreadyLinkedError{name: b.linkedName(channelID)}
		}
		return links.Link{}, err
	}
	return link, nil
}

var errNotPrivate = errors.New("channel has members other than the bot and the operator")

type alreadyLinkedError struct{ name string }

func (e *alreadyLinkedError) Error() string { return "channel already linked to " + e.name }

func (e *alreadyLinkedError) Unwrap() error { return links.ErrChannelLinked }

func (b *Bridge) linkedName(channelID string) string {
	if existing := b.table.FindAllByChannel(channelID); len(existing) > 0 {
		return existing[0].RemoteDisplayName
	}
	return "another friend"
}

// describeLinkError renders a chat failure as reply text.
func (b *Bridge) describeLinkError(err error, name string) string {
	var linked *alreadyLinkedError
	switch {
	case errors.Is(err, ErrNotAGroupChannel):
		return replyNotGroup
	case errors.Is(err, errNotPrivate):
		return replyNotPrivate
	case errors.As(err, &linked):
		return fmt.Sprintf(replyAlreadyLinked, linked.name)
	case errors.Is(err, contacts.ErrNotFriend):
		return fmt.Sprintf(replyNotFriend, name, b.cfg.BotName)
	case errors.Is(err, errNotConnected):
		return replyDisconnected
	default:
		return err.Error()
	}
}

func (b *Bridge) cmdUnlink(ctx context.Context, channelID string) {
	if b.table.RemoveByChannel(channelID) == 0 {
		b.reply(ctx, channelID, replyNotLinked)
		return
	}
	b.publish(event.TypeLinksChanged)
	b.reply(ctx, channelID, replyUnlinked)
}

func (b *Bridge) cmdList(ctx context.Context, channelID string) {
	all := b.table.All()
	if len(all) == 0 {
		b.reply(ctx, channelID, replyNoLinks)
		return
	}
	names := map[string]string{}
	groups, err := b.workspace.ListGroups(ctx)
	if err != nil {
		b.logger.Warn("list groups failed", slog.Any("error", err))
	}
	for _, g := range groups {
		names[g.ID] = g.Name
	}
	lines := make([]string, 0, len(all))
	for _, link := range all {
		name, ok := names[link.ChannelID]
		if !ok {
			name = link.ChannelID
		}
		lines = append(lines, fmt.Sprintf(replyListLine, name, link.RemoteDisplayName))
	}
	b.reply(ctx, channelID, strings.Join(lines, "\n"))
}

func (b *Bridge) cmdFriends(ctx context.Context, channelID, search string) {
	session := b.currentSession()
	if session == nil {
		b.reply(ctx, channelID, replyDisconnected)
		return
	}
	friends, err := contacts.SearchFriends(ctx, session, search)
	if err != nil {
		b.logger.Error("friend search failed", slog.Any("error", err))
		b.reply(ctx, channelID, "Unable to search friends: "+err.Error())
		return
	}
	lines := make([]string, 0, len(friends))
	for _, f := range friends {
		lines = append(lines, fmt.Sprintf(replyFriendLine, f.FullName, f.Vanity, f.UserID))
	}
	b.reply(ctx, channelID, strings.Join(lines, "\n"))
}

func (b *Bridge) cmdStatus(ctx context.Context, channelID string) {
	if b.currentSession() != nil {
		b.reply(ctx, channelID, replyConnected)
		return
	}
	b.reply(ctx, channelID, replyDisconnected)
}
