package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/facebot/internal/channel"
	"github.com/memohai/facebot/internal/channel/adapters/adapterutil"
)

const (
	joinHint    = "To connect a facebook chat type: \n@%s chat `<friend name>`"
	joinRefusal = "You can only connect private channels where me and you are the only users."
)

// errNotConnected is reported when a relay is attempted without a remote session.
var errNotConnected = errors.New("facebook is not connected")

// RemoteSendError wraps a failed send to a remote thread.
type RemoteSendError struct {
	ThreadID string
	Err      error
}

func (e *RemoteSendError) Error() string { return e.Err.Error() }

func (e *RemoteSendError) Unwrap() error { return e.Err }

// HandleWorkspaceEvent routes one workspace event. Commands and forwarding are evaluated
// independently for message events.
func (b *Bridge) HandleWorkspaceEvent(ctx context.Context, ev channel.WorkspaceEvent) {
	switch ev.Type {
	case channel.WorkspaceEventMessage:
		b.dispatchCommand(ctx, ev)
		b.forwardToRemote(ctx, ev)
	case channel.WorkspaceEventGroupJoined:
		b.welcome(ctx, ev.Channel)
	}
}

func isChatMessage(ev channel.WorkspaceEvent) bool {
	return ev.Type == channel.WorkspaceEventMessage && ev.Text != ""
}

// isFromBot matches the bridge's own messages and any bot-relayed message.
func (b *Bridge) isFromBot(ev channel.WorkspaceEvent) bool {
	return ev.User == b.botID() || ev.SubType == channel.SubtypeBotMessage
}

func (b *Bridge) mention() string {
	return "<@" + b.botID() + ">"
}

func (b *Bridge) mentionsBot(ev channel.WorkspaceEvent) bool {
	return strings.Contains(ev.Text, b.mention())
}

func (b *Bridge) forwardToRemote(ctx context.Context, ev channel.WorkspaceEvent) {
	if !isChatMessage(ev) && len(ev.Attachments) != 1 {
		return
	}
	if b.isFromBot(ev) || b.mentionsBot(ev) {
		return
	}
	targets := b.table.FindAllByChannel(ev.Channel)
	if len(targets) == 0 {
		return
	}

	msg := channel.OutgoingMessage{Body: b.toRemote(ev.Text)}
	if len(ev.Attachments) > 0 {
		msg.URL = ev.Attachments[0].ImageURL
	}

	session := b.currentSession()
	for _, link := range targets {
		var err error
		if session == nil {
			err = errNotConnected
		} else {
			err = session.SendMessage(ctx, msg, link.RemoteThreadID)
		}
		if err != nil {
			sendErr := &RemoteSendError{ThreadID: link.RemoteThreadID, Err: err}
			b.logger.Error("relay to remote failed", slog.String("channel", link.ChannelID),
				slog.String("thread", link.RemoteThreadID), slog.Any("error", err))
			b.reply(ctx, link.ChannelID, fmt.Sprintf("Error sending last message: %v", sendErr))
			continue
		}
		b.logger.Debug("relayed to remote", slog.String("thread", link.RemoteThreadID),
			slog.String("text", adapterutil.SummarizeText(msg.Body)))
	}
}

// welcome tells the operator how to link a group the bot was just added to.
func (b *Bridge) welcome(ctx context.Context, channelID string) {
	private, err := b.isPrivate(ctx, channelID)
	if err != nil {
		b.logger.Debug("joined channel is not a group", slog.String("channel", channelID), slog.Any("error", err))
	}
	text := fmt.Sprintf(joinHint, b.cfg.BotName)
	if !private {
		text = joinRefusal
	}
	b.reply(ctx, channelID, text)
}
