package slack

import (
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/memohai/facebot/internal/channel"
)

// convertEvent maps the RTM events the relay consumes. Everything else is dropped.
func convertEvent(raw slackapi.RTMEvent) (channel.WorkspaceEvent, bool) {
	switch data := raw.Data.(type) {
	case *slackapi.MessageEvent:
		ev := channel.WorkspaceEvent{
			Type:       channel.WorkspaceEventMessage,
			Channel:    data.Channel,
			User:       data.User,
			SubType:    data.SubType,
			Text:       data.Text,
			ReceivedAt: time.Now().UTC(),
		}
		for _, att := range data.Attachments {
			ev.Attachments = append(ev.Attachments, channel.ImageAttachment{ImageURL: att.ImageURL, Fallback: att.Fallback})
		}
		return ev, true
	case *slackapi.GroupJoinedEvent:
		return channel.WorkspaceEvent{
			Type:       channel.WorkspaceEventGroupJoined,
			Channel:    data.Channel.ID,
			ReceivedAt: time.Now().UTC(),
		}, true
	default:
		return channel.WorkspaceEvent{}, false
	}
}
