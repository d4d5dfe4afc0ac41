package relay

import (
	"context"
	"log/slog"
	"strings"

	"github.com/memohai/facebot/internal/channel"
)

// NotificationKind tags a normalized remote notification.
type NotificationKind string

const (
	NotificationMessage NotificationKind = "message"
	NotificationTyping  NotificationKind = "typing"
)

// Notification is a remote event reduced to what the relay acts on.
type Notification struct {
	Kind        NotificationKind
	ThreadID    string
	Body        *string
	IsTyping    bool
	Attachments []Attachment
}

type AttachmentKind string

const (
	AttachmentSticker       AttachmentKind = "sticker"
	AttachmentPhoto         AttachmentKind = "photo"
	AttachmentAnimatedImage AttachmentKind = "animated_image"
	AttachmentShare         AttachmentKind = "share"
	AttachmentFile          AttachmentKind = "file"
	AttachmentAudioClip     AttachmentKind = "audio_clip"
	AttachmentVideo         AttachmentKind = "video"
)

const audioClipPrefix = "audioclip"

// Attachment is a normalized remote attachment. URL is absolute; ImageURL is the image shown
// in the workspace (the picture itself, a share preview, or a video thumbnail).
type Attachment struct {
	Kind        AttachmentKind
	URL         string
	ImageURL    string
	Title       string
	Description string
	Name        string
	Duration    string
}

// Normalize converts a raw remote event. Events without a thread, and types the relay does not
// handle, are dropped.
func Normalize(ev channel.RemoteEvent, webRoot string) (Notification, bool) {
	switch ev.Type {
	case "message":
		threadID := ev.ThreadID.String()
		if threadID == "" {
			return Notification{}, false
		}
		n := Notification{Kind: NotificationMessage, ThreadID: threadID, Body: ev.Body}
		for _, raw := range ev.Attachments {
			if att, ok := normalizeAttachment(raw, webRoot); ok {
				n.Attachments = append(n.Attachments, att)
			}
		}
		return n, true
	case "typ":
		threadID := ev.From.String()
		if threadID == "" {
			return Notification{}, false
		}
		return Notification{Kind: NotificationTyping, ThreadID: threadID, IsTyping: ev.IsTyping}, true
	default:
		return Notification{}, false
	}
}

func normalizeAttachment(raw channel.RemoteAttachment, webRoot string) (Attachment, bool) {
	abs := func(u string) string { return absoluteURL(u, webRoot) }
	url := raw.URL
	if url == "" {
		url = raw.FacebookURL
	}
	url = abs(url)

	switch raw.Type {
	case "sticker":
		return Attachment{
			Kind:     AttachmentSticker,
			URL:      url,
			ImageURL: abs(firstNonEmpty(url, raw.HiresURL, raw.LargePreviewURL, raw.RawGifImage, raw.PreviewURL)),
		}, true
	case "photo":
		return Attachment{
			Kind:     AttachmentPhoto,
			URL:      url,
			ImageURL: abs(firstNonEmpty(raw.HiresURL, raw.LargePreviewURL, raw.RawGifImage, raw.PreviewURL, url)),
		}, true
	case "animated_image":
		return Attachment{
			Kind:     AttachmentAnimatedImage,
			URL:      url,
			ImageURL: abs(firstNonEmpty(raw.RawGifImage, raw.PreviewURL, raw.HiresURL, raw.LargePreviewURL, url)),
		}, true
	case "share":
		return Attachment{
			Kind:        AttachmentShare,
			URL:         url,
			ImageURL:    abs(raw.Image),
			Title:       firstNonEmpty(raw.Title, raw.Source, url),
			Description: raw.Description,
		}, true
	case "file":
		kind := AttachmentFile
		if strings.HasPrefix(raw.Name, audioClipPrefix) {
			kind = AttachmentAudioClip
		}
		return Attachment{Kind: kind, URL: url, Name: raw.Name}, true
	case "video":
		return Attachment{
			Kind:     AttachmentVideo,
			URL:      url,
			ImageURL: abs(raw.PreviewURL),
			Duration: raw.Duration.String(),
		}, true
	default:
		return Attachment{}, false
	}
}

func absoluteURL(u, webRoot string) string {
	if strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") {
		return strings.TrimRight(webRoot, "/") + u
	}
	return u
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// HandleRemoteEvent fans a remote event out to every link on its thread.
func (b *Bridge) HandleRemoteEvent(ctx context.Context, ev channel.RemoteEvent) {
	n, ok := Normalize(ev, b.cfg.WebRoot)
	if !ok {
		b.logger.Debug("remote event ignored", slog.String("type", ev.Type))
		return
	}
	for _, link := range b.table.FindAllByThread(n.ThreadID) {
		switch n.Kind {
		case NotificationTyping:
			b.typing.Observe(ctx, link.ChannelID, n.IsTyping)
		case NotificationMessage:
			for _, post := range FormatNotification(n, link, b.toWorkspace) {
				if err := b.workspace.PostMessage(ctx, link.ChannelID, post); err != nil {
					b.logger.Error("relay to workspace failed",
						slog.String("channel", link.ChannelID), slog.String("thread", n.ThreadID), slog.Any("error", err))
				}
			}
		}
	}
}
