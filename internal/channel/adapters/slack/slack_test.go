package slack

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/facebot/internal/channel"
)

type postCall struct {
	channel string
	values  url.Values
}

type fakeAPI struct {
	mu          sync.Mutex
	users       []slackapi.User
	userCalls   int
	pages       [][]slackapi.Channel
	info        map[string]*slackapi.Channel
	memberPages [][]string
	posts       []postCall
	postErr     error
}

func (f *fakeAPI) AuthTestContext(context.Context) (*slackapi.AuthTestResponse, error) {
	return &slackapi.AuthTestResponse{Team: "team", User: "facebot"}, nil
}

func (f *fakeAPI) GetUsersContext(context.Context, ...slackapi.GetUsersOption) ([]slackapi.User, error) {
	f.userCalls++
	return f.users, nil
}

func (f *fakeAPI) GetConversationsContext(_ context.Context, params *slackapi.GetConversationsParameters) ([]slackapi.Channel, string, error) {
	idx := 0
	if params.Cursor != "" {
		idx = int(params.Cursor[0] - '0')
	}
	next := ""
	if idx+1 < len(f.pages) {
		next = string(rune('0' + idx + 1))
	}
	return f.pages[idx], next, nil
}

func (f *fakeAPI) GetConversationInfoContext(_ context.Context, input *slackapi.GetConversationInfoInput) (*slackapi.Channel, error) {
	ch, ok := f.info[input.ChannelID]
	if !ok {
		return nil, errors.New("channel_not_found")
	}
	return ch, nil
}

func (f *fakeAPI) GetUsersInConversationContext(_ context.Context, params *slackapi.GetUsersInConversationParameters) ([]string, string, error) {
	idx := 0
	if params.Cursor != "" {
		idx = int(params.Cursor[0] - '0')
	}
	next := ""
	if idx+1 < len(f.memberPages) {
		next = string(rune('0' + idx + 1))
	}
	return f.memberPages[idx], next, nil
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	_, values, err := slackapi.UnsafeApplyMsgOptions("token", channelID, "https://slack.test/api/", options...)
	if err != nil {
		return "", "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, postCall{channel: channelID, values: values})
	return channelID, "1.0", f.postErr
}

func privateChannel(id, name string) *slackapi.Channel {
	ch := &slackapi.Channel{}
	ch.ID = id
	ch.Name = name
	ch.IsPrivate = true
	return ch
}

func newTestAdapter(api *fakeAPI) *Adapter {
	return newAdapter(slog.Default(), api, 1000)
}

func TestLookupUserCachesList(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{users: []slackapi.User{
		{ID: "UBOT", Name: "facebot"},
		{ID: "UOPS", Name: "operator"},
		{ID: "UOLD", Name: "gone", Deleted: true},
	}}
	a := newTestAdapter(api)

	u, err := a.LookupUser(context.Background(), "operator")
	require.NoError(t, err)
	assert.Equal(t, channel.User{ID: "UOPS", Name: "operator"}, u)

	_, err = a.LookupUser(context.Background(), "facebot")
	require.NoError(t, err)
	assert.Equal(t, 1, api.userCalls)

	_, err = a.LookupUser(context.Background(), "gone")
	assert.ErrorIs(t, err, channel.ErrUserNotFound)
	assert.Equal(t, 2, api.userCalls, "a miss refreshes the list")
}

func TestListGroupsPaginates(t *testing.T) {
	t.Parallel()

	first, second := privateChannel("G1", "one"), privateChannel("G2", "two")
	api := &fakeAPI{pages: [][]slackapi.Channel{{*first}, {*second}}}
	groups, err := newTestAdapter(api).ListGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []channel.Group{{ID: "G1", Name: "one"}, {ID: "G2", Name: "two"}}, groups)
}

func TestGroupMembers(t *testing.T) {
	t.Parallel()

	public := privateChannel("C1", "general")
	public.IsPrivate = false
	mpim := privateChannel("G9", "mpdm")
	mpim.IsMpIM = true

	api := &fakeAPI{
		info: map[string]*slackapi.Channel{
			"G1": privateChannel("G1", "jane"),
			"C1": public,
			"G9": mpim,
		},
		memberPages: [][]string{{"UBOT"}, {"UOPS"}},
	}
	a := newTestAdapter(api)

	members, err := a.GroupMembers(context.Background(), "G1")
	require.NoError(t, err)
	assert.Equal(t, []string{"UBOT", "UOPS"}, members)

	_, err = a.GroupMembers(context.Background(), "C1")
	assert.ErrorIs(t, err, channel.ErrNotGroup)
	_, err = a.GroupMembers(context.Background(), "G9")
	assert.ErrorIs(t, err, channel.ErrNotGroup)
	_, err = a.GroupMembers(context.Background(), "G404")
	assert.Error(t, err)
}

func TestPostMessageOptions(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	a := newTestAdapter(api)
	err := a.PostMessage(context.Background(), "G1", channel.Post{
		Text:        "<http://x|T>: D",
		Username:    "Jane Doe",
		IconURL:     "http://graph.facebook.com/123/picture?type=square",
		Attachments: []channel.ImageAttachment{{ImageURL: "http://x/i.png", Fallback: "http://x/i.png"}},
	})
	require.NoError(t, err)
	require.Len(t, api.posts, 1)

	v := api.posts[0].values
	assert.Equal(t, "G1", api.posts[0].channel)
	assert.Equal(t, "<http://x|T>: D", v.Get("text"))
	assert.Equal(t, "Jane Doe", v.Get("username"))
	assert.Equal(t, "http://graph.facebook.com/123/picture?type=square", v.Get("icon_url"))
	assert.Empty(t, v.Get("as_user"))
	assert.Contains(t, v.Get("attachments"), `"image_url":"http://x/i.png"`)
}

func TestPostMessageToUser(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{users: []slackapi.User{{ID: "UOPS", Name: "operator"}}}
	a := newTestAdapter(api)
	require.NoError(t, a.PostMessageToUser(context.Background(), "operator", channel.Post{Text: "Logged into facebook", AsUser: true}))
	require.Len(t, api.posts, 1)
	assert.Equal(t, "UOPS", api.posts[0].channel)
	assert.Equal(t, "true", api.posts[0].values.Get("as_user"))

	assert.ErrorIs(t, a.PostMessageToUser(context.Background(), "nobody", channel.Post{}), channel.ErrUserNotFound)
}

func TestPostMessageError(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{postErr: errors.New("not_in_channel")}
	err := newTestAdapter(api).PostMessage(context.Background(), "G1", channel.Post{Text: "x"})
	assert.ErrorContains(t, err, "not_in_channel")
}

func TestSendTypingRequiresConnection(t *testing.T) {
	t.Parallel()

	err := newTestAdapter(&fakeAPI{}).SendTyping(context.Background(), "G1")
	assert.ErrorIs(t, err, errNotConnected)
}

func TestSendTypingNeverBlocksOnUndrainedSocket(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(&fakeAPI{})
	a.rtm = slackapi.New("xoxb-test").NewRTM()
	a.connected = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 25; i++ {
			_ = a.SendTyping(ctx, "G1")
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendTyping blocked once the outgoing buffer filled")
	}
}

func TestSendTypingDroppedWhileReconnecting(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(&fakeAPI{})
	a.rtm = slackapi.New("xoxb-test").NewRTM()

	events := make(chan slackapi.RTMEvent, 4)
	events <- slackapi.RTMEvent{Type: "connected", Data: &slackapi.ConnectedEvent{ConnectionCount: 1}}
	close(events)
	a.consume(context.Background(), events, func(context.Context, channel.WorkspaceEvent) {})
	require.NoError(t, a.SendTyping(context.Background(), "G1"))

	events = make(chan slackapi.RTMEvent, 4)
	events <- slackapi.RTMEvent{Type: "disconnected", Data: &slackapi.DisconnectedEvent{}}
	events <- slackapi.RTMEvent{Type: "connecting", Data: &slackapi.ConnectingEvent{Attempt: 1}}
	close(events)
	a.consume(context.Background(), events, func(context.Context, channel.WorkspaceEvent) {})
	assert.ErrorIs(t, a.SendTyping(context.Background(), "G1"), errNotConnected)
}

func TestConvertEvent(t *testing.T) {
	t.Parallel()

	msg := &slackapi.MessageEvent{}
	msg.Channel = "G1"
	msg.User = "UOPS"
	msg.Text = "hi :smile:"
	msg.Attachments = []slackapi.Attachment{{ImageURL: "http://x/i.png", Fallback: "pic"}}

	ev, ok := convertEvent(slackapi.RTMEvent{Type: "message", Data: msg})
	require.True(t, ok)
	assert.Equal(t, channel.WorkspaceEventMessage, ev.Type)
	assert.Equal(t, "G1", ev.Channel)
	assert.Equal(t, "UOPS", ev.User)
	assert.Equal(t, "hi :smile:", ev.Text)
	assert.Equal(t, []channel.ImageAttachment{{ImageURL: "http://x/i.png", Fallback: "pic"}}, ev.Attachments)

	joined := &slackapi.GroupJoinedEvent{}
	joined.Channel.ID = "G2"
	ev, ok = convertEvent(slackapi.RTMEvent{Type: "group_joined", Data: joined})
	require.True(t, ok)
	assert.Equal(t, channel.WorkspaceEvent{Type: channel.WorkspaceEventGroupJoined, Channel: "G2", ReceivedAt: ev.ReceivedAt}, ev)

	_, ok = convertEvent(slackapi.RTMEvent{Type: "hello", Data: &slackapi.HelloEvent{}})
	assert.False(t, ok)
}

func TestConsumeStopsOnInvalidAuth(t *testing.T) {
	t.Parallel()

	events := make(chan slackapi.RTMEvent, 4)
	msg := &slackapi.MessageEvent{}
	msg.Channel = "G1"
	msg.Text = "one"
	events <- slackapi.RTMEvent{Type: "connected", Data: &slackapi.ConnectedEvent{ConnectionCount: 1}}
	events <- slackapi.RTMEvent{Type: "message", Data: msg}
	events <- slackapi.RTMEvent{Type: "invalid_auth", Data: &slackapi.InvalidAuthEvent{}}
	events <- slackapi.RTMEvent{Type: "message", Data: msg}

	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		newTestAdapter(&fakeAPI{}).consume(context.Background(), events, func(_ context.Context, ev channel.WorkspaceEvent) {
			got = append(got, ev.Text)
		})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume did not return")
	}
	assert.Equal(t, []string{"one"}, got)
}

func TestSlogOutput(t *testing.T) {
	t.Parallel()

	out := &slogOutput{log: slog.Default()}
	assert.NoError(t, out.Output(2, "rtm: connected\n"))
}
