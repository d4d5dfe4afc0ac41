package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/memohai/facebot/internal/channel"
	"github.com/memohai/facebot/internal/event"
)

// State is the bring-up state of the bridge.
type State string

const (
	StateIdle                      State = "idle"
	StateResolvingIdentities       State = "resolving_identities"
	StateLoadingSnapshot           State = "loading_snapshot"
	StateAuthenticatingSavedState  State = "authenticating_saved_state"
	StateAuthenticatingCredentials State = "authenticating_credentials"
	StateListening                 State = "listening"
	StateReconnecting              State = "reconnecting"
	StateFailed                    State = "failed"
	StateStopped                   State = "stopped"
)

// StartupError is the fatal bring-up failure. Identity names who could not be resolved or
// authenticated.
type StartupError struct {
	Stage    State
	Identity string
	Err      error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed while %s (%s): %v", e.Stage, e.Identity, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Start runs identity resolution, snapshot load and remote login, then begins consuming
// both event streams. Any error it returns is fatal.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.bringUp(ctx); err != nil {
		b.setState(StateFailed)
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	if err := b.listen(runCtx); err != nil {
		cancel()
		b.setState(StateFailed)
		return &StartupError{Stage: StateListening, Identity: "remote event stream", Err: err}
	}
	wsConn, err := b.workspace.Connect(runCtx, b.HandleWorkspaceEvent)
	if err != nil {
		_ = b.Stop(ctx)
		b.setState(StateFailed)
		return &StartupError{Stage: StateListening, Identity: "workspace socket", Err: err}
	}
	b.mu.Lock()
	b.conns = append(b.conns, wsConn)
	b.mu.Unlock()

	b.setState(StateListening)
	return nil
}

func (b *Bridge) bringUp(ctx context.Context) error {
	b.setState(StateResolvingIdentities)
	bot, err := b.workspace.LookupUser(ctx, b.cfg.BotName)
	if err != nil {
		return &StartupError{Stage: StateResolvingIdentities, Identity: "user " + b.cfg.BotName, Err: err}
	}
	operator, err := b.workspace.LookupUser(ctx, b.cfg.AuthorisedUsername)
	if err != nil {
		return &StartupError{Stage: StateResolvingIdentities, Identity: "user " + b.cfg.AuthorisedUsername, Err: err}
	}
	b.mu.Lock()
	b.bot, b.operator = bot, operator
	b.mu.Unlock()
	b.logger.Info("identities resolved", slog.String("bot", bot.ID), slog.String("operator", operator.ID))

	b.setState(StateLoadingSnapshot)
	var appState json.RawMessage
	snap, err := b.store.Load(ctx)
	if err != nil {
		b.logger.Warn("snapshot unavailable, using credentials", slog.Any("error", err))
		b.debugf(ctx, "Couldn't log in with any saved data, logging in with email and pass (%v)", err)
	} else {
		for _, dup := range b.table.Restore(snap.ChannelLinks) {
			b.logger.Warn("dropped duplicate link from snapshot",
				slog.String("channel", dup.ChannelID), slog.String("thread", dup.RemoteThreadID))
		}
		appState = snap.AppState
		b.debugf(ctx, "Loaded data, found %d channel links.", b.table.Len())
	}

	session, err := b.authenticate(ctx, appState)
	if err != nil {
		return &StartupError{Stage: StateAuthenticatingCredentials, Identity: "remote account " + b.cfg.Credentials.Email, Err: err}
	}
	b.establish(ctx, session)
	return nil
}

// authenticate logs in with saved state when there is some, falling back to credentials.
func (b *Bridge) authenticate(ctx context.Context, appState json.RawMessage) (channel.RemoteSession, error) {
	if len(appState) > 0 {
		b.setState(StateAuthenticatingSavedState)
		session, err := b.auth.Login(ctx, channel.LoginRequest{AppState: appState})
		if err == nil {
			return session, nil
		}
		b.logger.Warn("saved state login failed, using credentials", slog.Any("error", err))
		b.debugf(ctx, "Couldn't log in with saved data, logging in with email and pass (%v)", err)
	}

	b.setState(StateAuthenticatingCredentials)
	creds := b.cfg.Credentials
	session, err := b.auth.Login(ctx, channel.LoginRequest{Credentials: &creds})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (b *Bridge) establish(ctx context.Context, session channel.RemoteSession) {
	b.setSession(session)
	if state, err := session.AppState(ctx); err == nil {
		b.mu.Lock()
		b.appState = state
		b.mu.Unlock()
	}
	b.logger.Info("remote session established")
	b.debugf(ctx, "Logged into facebook")
	b.publish(event.TypeSessionEstablished)
}

// listen attaches the remote handler and supervises the stream.
func (b *Bridge) listen(ctx context.Context) error {
	session := b.currentSession()
	if session == nil {
		return errors.New("no remote session")
	}
	conn, err := session.Listen(ctx, b.HandleRemoteEvent)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.supervise(ctx, conn)
	return nil
}

// supervise re-authenticates when the remote stream ends while the bridge is running.
func (b *Bridge) supervise(ctx context.Context, conn channel.Connection) {
	defer b.wg.Done()
	select {
	case <-ctx.Done():
		return
	case <-conn.Done():
	}
	if ctx.Err() != nil {
		return
	}

	b.logger.Warn("remote event stream closed, reconnecting")
	b.setSession(nil)
	b.setState(StateReconnecting)
	b.removeConn(conn)

	for {
		b.mu.RLock()
		appState := b.appState
		b.mu.RUnlock()

		session, err := b.authenticate(ctx, appState)
		if err == nil {
			b.establish(ctx, session)
			if err = b.listen(ctx); err == nil {
				b.setState(StateListening)
				return
			}
			b.setSession(nil)
		}
		b.logger.Error("remote reconnect failed", slog.Any("error", err), slog.Duration("retry_in", b.cfg.ReconnectDelay))
		b.setState(StateReconnecting)

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.ReconnectDelay):
		}
	}
}

func (b *Bridge) removeConn(target channel.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.conns[:0]
	for _, c := range b.conns {
		if c != target {
			kept = append(kept, c)
		}
	}
	b.conns = kept
}
