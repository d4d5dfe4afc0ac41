package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/facebot/internal/channel"
	"github.com/memohai/facebot/internal/links"
)

const webRoot = "https://www.facebook.com"

func strPtr(s string) *string { return &s }

func decodeEvent(t *testing.T, raw string) channel.RemoteEvent {
	t.Helper()
	var ev channel.RemoteEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func TestNormalizeMessage(t *testing.T) {
	t.Parallel()

	ev := decodeEvent(t, `{"type":"message","threadID":123,"body":"hi","attachments":[
		{"type":"sticker","url":"https://cdn/sticker.png"},
		{"type":"photo","largePreviewUrl":"https://cdn/large.jpg","previewUrl":"https://cdn/small.jpg"},
		{"type":"animated_image","previewUrl":"https://cdn/preview.gif"},
		{"type":"file","name":"report.pdf","facebookUrl":"/l.php?u=report"},
		{"type":"file","name":"audioclip-1476000000.mp4","url":"https://cdn/voice.mp4"},
		{"type":"video","url":"https://cdn/v.mp4","duration":12,"previewUrl":"https://cdn/v.jpg"},
		{"type":"unknown_thing"}
	]}`)

	n, ok := Normalize(ev, webRoot)
	require.True(t, ok)
	assert.Equal(t, NotificationMessage, n.Kind)
	assert.Equal(t, "123", n.ThreadID)
	require.NotNil(t, n.Body)
	assert.Equal(t, "hi", *n.Body)
	require.Len(t, n.Attachments, 6)

	assert.Equal(t, Attachment{Kind: AttachmentSticker, URL: "https://cdn/sticker.png", ImageURL: "https://cdn/sticker.png"}, n.Attachments[0])
	assert.Equal(t, "https://cdn/large.jpg", n.Attachments[1].ImageURL, "large preview when hi-res is absent")
	assert.Equal(t, "https://cdn/preview.gif", n.Attachments[2].ImageURL)
	assert.Equal(t, Attachment{Kind: AttachmentFile, URL: "https://www.facebook.com/l.php?u=report", Name: "report.pdf"}, n.Attachments[3])
	assert.Equal(t, AttachmentAudioClip, n.Attachments[4].Kind)
	assert.Equal(t, Attachment{Kind: AttachmentVideo, URL: "https://cdn/v.mp4", ImageURL: "https://cdn/v.jpg", Duration: "12"}, n.Attachments[5])
}

func TestNormalizeTyping(t *testing.T) {
	t.Parallel()

	n, ok := Normalize(decodeEvent(t, `{"type":"typ","from":"123","isTyping":true,"threadID":"999"}`), webRoot)
	require.True(t, ok)
	assert.Equal(t, Notification{Kind: NotificationTyping, ThreadID: "123", IsTyping: true}, n)
}

func TestNormalizeDrops(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`{"type":"message"}`,
		`{"type":"typ","isTyping":true}`,
		`{"type":"read_receipt","threadID":"123"}`,
		`{"type":"presence","userID":"123"}`,
	} {
		_, ok := Normalize(decodeEvent(t, raw), webRoot)
		assert.False(t, ok, raw)
	}
}

func TestImageFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  channel.RemoteAttachment
		want string
	}{
		{name: "photo hi-res", raw: channel.RemoteAttachment{Type: "photo", HiresURL: "h", LargePreviewURL: "l"}, want: "h"},
		{name: "photo raw gif", raw: channel.RemoteAttachment{Type: "photo", RawGifImage: "g", PreviewURL: "p"}, want: "g"},
		{name: "photo preview", raw: channel.RemoteAttachment{Type: "photo", PreviewURL: "p"}, want: "p"},
		{name: "gif raw", raw: channel.RemoteAttachment{Type: "animated_image", RawGifImage: "g", PreviewURL: "p"}, want: "g"},
		{name: "relative", raw: channel.RemoteAttachment{Type: "sticker", URL: "/sticker/1.png"}, want: webRoot + "/sticker/1.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att, ok := normalizeAttachment(tt.raw, webRoot)
			require.True(t, ok)
			assert.Equal(t, tt.want, att.ImageURL)
		})
	}
}

func TestFormatShare(t *testing.T) {
	t.Parallel()

	link := links.New(privateCh, "123", "Jane Doe")
	n, ok := Normalize(channel.RemoteEvent{
		Type:        "message",
		ThreadID:    "123",
		Attachments: []channel.RemoteAttachment{{Type: "share", URL: "http://x", Title: "T", Description: "D"}},
	}, webRoot)
	require.True(t, ok)

	posts := FormatNotification(n, link, nil)
	require.Len(t, posts, 1)
	assert.Equal(t, "<http://x|T>: D", posts[0].Text)
	assert.Len(t, posts[0].Attachments, 1)
	assert.Equal(t, "Jane Doe", posts[0].Username)
	assert.Equal(t, link.IconURL, posts[0].IconURL)
}

func TestFormatShareTitleFallback(t *testing.T) {
	t.Parallel()

	n, _ := Normalize(channel.RemoteEvent{
		Type:     "message",
		ThreadID: "123",
		Attachments: []channel.RemoteAttachment{
			{Type: "share", URL: "http://x", Source: "Example"},
			{Type: "share", URL: "http://y"},
		},
	}, webRoot)
	posts := FormatNotification(n, links.New(privateCh, "123", "Jane Doe"), nil)
	require.Len(t, posts, 2)
	assert.Equal(t, "<http://x|Example>: ", posts[0].Text)
	assert.Equal(t, "<http://y|http://y>: ", posts[1].Text)
}

func TestFormatAttachments(t *testing.T) {
	t.Parallel()

	link := links.New(privateCh, "123", "Jane Doe")
	n := Notification{
		Kind:     NotificationMessage,
		ThreadID: "123",
		Body:     strPtr("look :)"),
		Attachments: []Attachment{
			{Kind: AttachmentPhoto, ImageURL: "https://cdn/p.jpg"},
			{Kind: AttachmentFile, URL: "https://cdn/f.pdf", Name: "f.pdf"},
			{Kind: AttachmentAudioClip, URL: "https://cdn/a.mp4", Name: "audioclip-1"},
			{Kind: AttachmentVideo, URL: "https://cdn/v.mp4", ImageURL: "https://cdn/v.jpg", Duration: "42"},
		},
	}
	posts := FormatNotification(n, link, func(s string) string { return s + "!" })
	require.Len(t, posts, 5)

	assert.Equal(t, "look :)!", posts[0].Text)
	assert.Empty(t, posts[0].Attachments)

	assert.Equal(t, "", posts[1].Text)
	assert.Equal(t, []channel.ImageAttachment{{ImageURL: "https://cdn/p.jpg", Fallback: "https://cdn/p.jpg"}}, posts[1].Attachments)

	assert.Equal(t, "<https://cdn/f.pdf|f.pdf>", posts[2].Text)
	assert.Equal(t, "<https://cdn/a.mp4|Download Voice Message>", posts[3].Text)
	assert.Equal(t, "<https://cdn/v.mp4|Download Video (42 seconds)>", posts[4].Text)
	assert.Equal(t, "https://cdn/v.jpg", posts[4].Attachments[0].ImageURL)

	for _, p := range posts {
		assert.Equal(t, "Jane Doe", p.Username)
		assert.Equal(t, "http://graph.facebook.com/123/picture?type=square", p.IconURL)
		assert.False(t, p.AsUser)
	}
}

func TestFormatSkipsEmptyBody(t *testing.T) {
	t.Parallel()

	posts := FormatNotification(Notification{Kind: NotificationMessage, Body: strPtr("")}, links.New(privateCh, "1", "J"), nil)
	assert.Empty(t, posts)
}

func TestRemoteMessageRelayedToLinkedChannel(t *testing.T) {
	t.Parallel()

	h := newHarness(links.New(privateCh, "123", "Jane Doe"))
	h.bridge.HandleRemoteEvent(context.Background(), channel.RemoteEvent{Type: "message", ThreadID: "123", Body: strPtr("hello")})

	posts := h.workspace.sent()
	require.Len(t, posts, 1)
	assert.Equal(t, privateCh, posts[0].Channel)
	assert.Equal(t, "hello", posts[0].Post.Text)
	assert.Equal(t, "Jane Doe", posts[0].Post.Username)
}

func TestRemoteMessageForUnknownThread(t *testing.T) {
	t.Parallel()

	h := newHarness(links.New(privateCh, "123", "Jane Doe"))
	h.bridge.HandleRemoteEvent(context.Background(), channel.RemoteEvent{Type: "message", ThreadID: "999", Body: strPtr("hello")})
	assert.Empty(t, h.workspace.sent())
}

func TestRemoteTypingDrivesIndicator(t *testing.T) {
	t.Parallel()

	h := newHarness(links.New(privateCh, "123", "Jane Doe"))
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.bridge.typing.Wait()
	}()

	start := channel.RemoteEvent{Type: "typ", From: "123", IsTyping: true}
	h.bridge.HandleRemoteEvent(ctx, start)
	h.bridge.HandleRemoteEvent(ctx, start)

	require.Eventually(t, func() bool { return h.workspace.typingCount() >= 1 }, time.Second, 5*time.Millisecond)
	_, typing := h.bridge.Links().TypingSince(privateCh)
	assert.True(t, typing)

	h.bridge.HandleRemoteEvent(ctx, channel.RemoteEvent{Type: "typ", From: "123", IsTyping: false})
	_, typing = h.bridge.Links().TypingSince(privateCh)
	assert.False(t, typing)
}
