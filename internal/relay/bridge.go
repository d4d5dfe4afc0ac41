// Package relay is the bidirectional relay between workspace channels and remote threads.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/memohai/facebot/internal/channel"
	"github.com/memohai/facebot/internal/emoji"
	"github.com/memohai/facebot/internal/event"
	"github.com/memohai/facebot/internal/links"
	"github.com/memohai/facebot/internal/snapshot"
	"github.com/memohai/facebot/internal/typing"
)

const defaultReconnectDelay = 30 * time.Second

// Config holds the identities and credentials the bridge runs with.
type Config struct {
	BotName            string
	AuthorisedUsername string
	DebugMessages      bool
	WebRoot            string
	Credentials        channel.Credentials
	ReconnectDelay     time.Duration
}

// Deps are the collaborators of the bridge. ToRemote and ToWorkspace default to the
// emoji package converters.
type Deps struct {
	Workspace     channel.Workspace
	Authenticator channel.RemoteAuthenticator
	Store         snapshot.Store
	Links         *links.Table
	Events        event.Publisher
	Typing        typing.Options
	ToRemote      emoji.Converter
	ToWorkspace   emoji.Converter
}

// Bridge owns the link table and routes events between the two platforms.
type Bridge struct {
	cfg         Config
	workspace   channel.Workspace
	auth        channel.RemoteAuthenticator
	store       snapshot.Store
	table       *links.Table
	typing      *typing.Tracker
	events      event.Publisher
	toRemote    emoji.Converter
	toWorkspace emoji.Converter
	logger      *slog.Logger

	mu       sync.RWMutex
	state    State
	session  channel.RemoteSession
	appState json.RawMessage
	bot      channel.User
	operator channel.User
	conns    []channel.Connection
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(log *slog.Logger, cfg Config, deps Deps) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if deps.Links == nil {
		deps.Links = links.NewTable()
	}
	if deps.ToRemote == nil {
		deps.ToRemote = emoji.ToUnicode
	}
	if deps.ToWorkspace == nil {
		deps.ToWorkspace = emoji.EmoticonsToShortcodes
	}
	logger := log.With(slog.String("component", "relay"))
	return &Bridge{
		cfg:         cfg,
		workspace:   deps.Workspace,
		auth:        deps.Authenticator,
		store:       deps.Store,
		table:       deps.Links,
		typing:      typing.NewTracker(log, deps.Links, deps.Workspace, deps.Typing),
		events:      deps.Events,
		toRemote:    deps.ToRemote,
		toWorkspace: deps.ToWorkspace,
		logger:      logger,
		state:       StateIdle,
	}
}

// Links exposes the link table.
func (b *Bridge) Links() *links.Table {
	return b.table
}

// Status is a point-in-time view of the bridge.
type Status struct {
	State           State        `json:"state"`
	RemoteConnected bool         `json:"remote_connected"`
	Links           []links.Link `json:"links"`
}

func (b *Bridge) Status() Status {
	b.mu.RLock()
	state, connected := b.state, b.session != nil
	b.mu.RUnlock()
	all := b.table.All()
	if all == nil {
		all = []links.Link{}
	}
	return Status{State: state, RemoteConnected: connected, Links: all}
}

// Snapshot implements snapshot.Source.
func (b *Bridge) Snapshot(ctx context.Context) (snapshot.Snapshot, error) {
	session := b.currentSession()
	if session == nil {
		return snapshot.Snapshot{}, snapshot.ErrNoSession
	}
	state, err := session.AppState(ctx)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("read app state: %w", err)
	}
	b.mu.Lock()
	b.appState = state
	b.mu.Unlock()
	return snapshot.Snapshot{AppState: state, ChannelLinks: b.table.All()}, nil
}

// Stop closes both event streams and waits for background loops.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var firstErr error
	for _, conn := range conns {
		if err := conn.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.wg.Wait()
	b.typing.Wait()
	b.setState(StateStopped)
	return firstErr
}

func (b *Bridge) currentSession() channel.RemoteSession {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

func (b *Bridge) setSession(session channel.RemoteSession) {
	b.mu.Lock()
	b.session = session
	b.mu.Unlock()
}

func (b *Bridge) botID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bot.ID
}

func (b *Bridge) allowedMembers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return []string{b.bot.ID, b.operator.ID}
}

func (b *Bridge) setState(state State) {
	b.mu.Lock()
	prev := b.state
	b.state = state
	b.mu.Unlock()
	if prev != state {
		b.logger.Info("state changed", slog.String("from", string(prev)), slog.String("to", string(state)))
	}
}

func (b *Bridge) publish(kind event.Type) {
	if b.events == nil {
		return
	}
	b.events.Publish(event.Event{Type: kind, Topic: event.TopicSnapshot})
}

// reply posts text as the bot itself.
func (b *Bridge) reply(ctx context.Context, channelID, text string) {
	if err := b.workspace.PostMessage(ctx, channelID, channel.Post{Text: text, AsUser: true}); err != nil {
		b.logger.Error("post reply failed", slog.String("channel", channelID), slog.Any("error", err))
	}
}

// debugf DMs the operator when debug messages are enabled.
func (b *Bridge) debugf(ctx context.Context, format string, args ...any) {
	if !b.cfg.DebugMessages {
		return
	}
	text := fmt.Sprintf(format, args...)
	if err := b.workspace.PostMessageToUser(ctx, b.cfg.AuthorisedUsername, channel.Post{Text: text, AsUser: true}); err != nil {
		b.logger.Warn("debug message failed", slog.Any("error", err))
	}
}
