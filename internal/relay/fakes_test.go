package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/memohai/facebot/internal/channel"
	"github.com/memohai/facebot/internal/event"
	"github.com/memohai/facebot/internal/links"
	"github.com/memohai/facebot/internal/snapshot"
)

const (
	botID      = "UBOT"
	operatorID = "UOPS"
	privateCh  = "GPRIV"
	crowdedCh  = "GCROWD"
	publicCh   = "CPUB"
	dmCh       = "DOPS"
)

type sentPost struct {
	Channel string
	User    string
	Post    channel.Post
}

type fakeWorkspace struct {
	mu      sync.Mutex
	users   map[string]channel.User
	members map[string][]string
	groups  []channel.Group
	posts   []sentPost
	typing  []string
	postErr error
	handler channel.WorkspaceHandler
	connErr error
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{
		users: map[string]channel.User{
			"facebot":  {ID: botID, Name: "facebot"},
			"operator": {ID: operatorID, Name: "operator"},
		},
		members: map[string][]string{
			privateCh: {botID, operatorID},
			crowdedCh: {botID, operatorID, "UX"},
		},
		groups: []channel.Group{
			{ID: privateCh, Name: "jane-chat"},
			{ID: crowdedCh, Name: "crowd"},
		},
	}
}

func (w *fakeWorkspace) Type() channel.ChannelType { return channel.TypeSlack }

func (w *fakeWorkspace) LookupUser(_ context.Context, name string) (channel.User, error) {
	u, ok := w.users[name]
	if !ok {
		return channel.User{}, channel.ErrUserNotFound
	}
	return u, nil
}

func (w *fakeWorkspace) ListGroups(context.Context) ([]channel.Group, error) {
	return w.groups, nil
}

func (w *fakeWorkspace) GroupMembers(_ context.Context, channelID string) ([]string, error) {
	m, ok := w.members[channelID]
	if !ok {
		return nil, channel.ErrNotGroup
	}
	return m, nil
}

func (w *fakeWorkspace) PostMessage(_ context.Context, channelID string, post channel.Post) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.posts = append(w.posts, sentPost{Channel: channelID, Post: post})
	return w.postErr
}

func (w *fakeWorkspace) PostMessageToUser(_ context.Context, username string, post channel.Post) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.posts = append(w.posts, sentPost{User: username, Post: post})
	return nil
}

func (w *fakeWorkspace) SendTyping(_ context.Context, channelID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.typing = append(w.typing, channelID)
	return nil
}

func (w *fakeWorkspace) Connect(_ context.Context, handler channel.WorkspaceHandler) (channel.Connection, error) {
	if w.connErr != nil {
		return nil, w.connErr
	}
	w.handler = handler
	return channel.NewConnection(channel.TypeSlack, func(context.Context) error { return nil }), nil
}

func (w *fakeWorkspace) sent() []sentPost {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]sentPost(nil), w.posts...)
}

func (w *fakeWorkspace) typingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.typing)
}

type sentRemote struct {
	Msg      channel.OutgoingMessage
	ThreadID string
}

type fakeSession struct {
	mu       sync.Mutex
	appState json.RawMessage
	matches  map[string][]channel.UserMatch
	profiles map[string]channel.Profile
	friends  []channel.Friend
	sent     []sentRemote
	sendErr  error
	conn     *channel.BaseConnection
	handler  channel.RemoteHandler
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		appState: json.RawMessage(`[{"key":"c_user","value":"1"}]`),
		matches: map[string][]channel.UserMatch{
			"Jane Doe": {{UserID: "123", Name: "Jane Doe"}},
			"Stranger": {{UserID: "777", Name: "Stranger"}},
		},
		profiles: map[string]channel.Profile{
			"123": {Name: "Jane Doe", IsFriend: true},
			"777": {Name: "Stranger", IsFriend: false},
		},
		friends: []channel.Friend{
			{UserID: "123", FullName: "Jane Doe", Vanity: "jane.doe", IsFriend: true},
			{UserID: "124", FullName: "Janet Smith", Vanity: "janet", IsFriend: true},
			{UserID: "777", FullName: "Jane Stranger", Vanity: "stranger", IsFriend: false},
		},
	}
}

func (s *fakeSession) AppState(context.Context) (json.RawMessage, error) { return s.appState, nil }

func (s *fakeSession) SendMessage(_ context.Context, msg channel.OutgoingMessage, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, sentRemote{Msg: msg, ThreadID: threadID})
	return nil
}

func (s *fakeSession) SearchUsers(_ context.Context, name string) ([]channel.UserMatch, error) {
	return s.matches[name], nil
}

func (s *fakeSession) UserInfo(_ context.Context, ids ...string) (map[string]channel.Profile, error) {
	out := map[string]channel.Profile{}
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *fakeSession) FriendsList(context.Context) ([]channel.Friend, error) { return s.friends, nil }

func (s *fakeSession) Listen(_ context.Context, handler channel.RemoteHandler) (channel.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	s.conn = channel.NewConnection(channel.TypeMessenger, func(context.Context) error { return nil })
	return s.conn, nil
}

func (s *fakeSession) remoteSent() []sentRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentRemote(nil), s.sent...)
}

type fakeAuthenticator struct {
	mu          sync.Mutex
	session     *fakeSession
	rejectState bool
	rejectCreds bool
	requests    []channel.LoginRequest
}

func (a *fakeAuthenticator) Type() channel.ChannelType { return channel.TypeMessenger }

func (a *fakeAuthenticator) Login(_ context.Context, req channel.LoginRequest) (channel.RemoteSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if len(req.AppState) > 0 && a.rejectState {
		return nil, errors.Join(channel.ErrAuthentication, errors.New("session expired"))
	}
	if req.Credentials != nil && a.rejectCreds {
		return nil, errors.Join(channel.ErrAuthentication, errors.New("wrong password"))
	}
	return a.session, nil
}

type fakeStore struct {
	snap  snapshot.Snapshot
	err   error
	saved []snapshot.Snapshot
}

func (s *fakeStore) Name() string { return "fake" }

func (s *fakeStore) Load(context.Context) (snapshot.Snapshot, error) { return s.snap, s.err }

func (s *fakeStore) Save(_ context.Context, snap snapshot.Snapshot) error {
	s.saved = append(s.saved, snap)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *fakePublisher) Publish(ev event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) count(kind event.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == kind {
			n++
		}
	}
	return n
}

type harness struct {
	bridge    *Bridge
	workspace *fakeWorkspace
	session   *fakeSession
	auth      *fakeAuthenticator
	store     *fakeStore
	events    *fakePublisher
}

func identity(s string) string { return s }

// newHarness returns a bridge whose identities and session are already established.
func newHarness(initial ...links.Link) *harness {
	h := &harness{
		workspace: newFakeWorkspace(),
		session:   newFakeSession(),
		store:     &fakeStore{err: &snapshot.LoadError{Backend: "fake", Err: snapshot.ErrNotFound}},
		events:    &fakePublisher{},
	}
	h.auth = &fakeAuthenticator{session: h.session}
	table := links.NewTable()
	table.Restore(initial)
	h.bridge = New(nil, Config{
		BotName:            "facebot",
		AuthorisedUsername: "operator",
		WebRoot:            "https://www.facebook.com",
		Credentials:        channel.Credentials{Email: "me@example.com", Password: "pw"},
	}, Deps{
		Workspace:     h.workspace,
		Authenticator: h.auth,
		Store:         h.store,
		Links:         table,
		Events:        h.events,
		ToRemote:      identity,
		ToWorkspace:   identity,
	})
	h.bridge.bot = channel.User{ID: botID, Name: "facebot"}
	h.bridge.operator = channel.User{ID: operatorID, Name: "operator"}
	h.bridge.session = h.session
	return h
}

func (h *harness) say(channelID, user, text string) {
	h.bridge.HandleWorkspaceEvent(context.Background(), channel.WorkspaceEvent{
		Type:    channel.WorkspaceEventMessage,
		Channel: channelID,
		User:    user,
		Text:    text,
	})
}

func (h *harness) lastReply() string {
	posts := h.workspace.sent()
	if len(posts) == 0 {
		return ""
	}
	return posts[len(posts)-1].Post.Text
}
