package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/memohai/facebot/internal/channel"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 * 1024 * 1024
	eventBuffer    = 256
)

// ErrSessionClosed is returned by calls made after the gateway socket has gone away.
var ErrSessionClosed = errors.New("messenger session closed")

// Session is one authenticated gateway socket. It implements channel.RemoteSession.
type Session struct {
	logger      *slog.Logger
	conn        *websocket.Conn
	callTimeout time.Duration
	send        chan []byte
	events      chan channel.RemoteEvent

	mu       sync.Mutex
	pending  map[string]chan frame
	appState json.RawMessage

	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(logger *slog.Logger, conn *websocket.Conn, callTimeout time.Duration) *Session {
	s := &Session{
		logger:      logger,
		conn:        conn,
		callTimeout: callTimeout,
		send:        make(chan []byte, 16),
		events:      make(chan channel.RemoteEvent, eventBuffer),
		pending:     map[string]chan frame{},
		closed:      make(chan struct{}),
	}
	go s.writePump()
	go s.readPump()
	return s
}

// Close tears down the socket. Pending calls fail with ErrSessionClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

func (s *Session) readPump() {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("gateway read failed", slog.Any("error", err))
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("gateway frame decode failed", slog.Any("error", err))
			continue
		}
		if len(f.Event) > 0 {
			s.deliver(f.Event)
			continue
		}
		s.resolve(f)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Warn("gateway write failed", slog.Any("error", err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Session) deliver(raw json.RawMessage) {
	var ev channel.RemoteEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.logger.Warn("gateway event decode failed", slog.Any("error", err))
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("gateway event dropped, buffer full", slog.String("type", ev.Type))
	}
}

func (s *Session) resolve(f frame) {
	s.mu.Lock()
	ch, ok := s.pending[f.ID]
	delete(s.pending, f.ID)
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("gateway response without caller", slog.String("id", f.ID))
		return
	}
	ch <- f
}

// call sends one request and decodes its result into out, which may be nil.
func (s *Session) call(ctx context.Context, method string, params, out any) error {
	id := uuid.NewString()
	payload, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	reply := make(chan frame, 1)
	s.mu.Lock()
	s.pending[id] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	select {
	case s.send <- payload:
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case f := <-reply:
		if f.Error != nil {
			return &GatewayError{Method: method, Message: f.Error.Message}
		}
		if out == nil || len(f.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(f.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setAppState(state json.RawMessage) {
	s.mu.Lock()
	s.appState = state
	s.mu.Unlock()
}

// AppState fetches the current serialized session, falling back to the one returned at login.
func (s *Session) AppState(ctx context.Context) (json.RawMessage, error) {
	var state json.RawMessage
	if err := s.call(ctx, methodGetAppState, nil, &state); err != nil {
		s.mu.Lock()
		cached := s.appState
		s.mu.Unlock()
		if len(cached) > 0 && errors.Is(err, ErrSessionClosed) {
			return cached, nil
		}
		return nil, err
	}
	s.setAppState(state)
	return state, nil
}

func (s *Session) SendMessage(ctx context.Context, msg channel.OutgoingMessage, threadID string) error {
	return s.call(ctx, methodSendMessage, sendMessageParams{Message: msg, ThreadID: threadID}, nil)
}

func (s *Session) SearchUsers(ctx context.Context, name string) ([]channel.UserMatch, error) {
	var matches []channel.UserMatch
	if err := s.call(ctx, methodGetUserID, getUserIDParams{Name: name}, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *Session) UserInfo(ctx context.Context, ids ...string) (map[string]channel.Profile, error) {
	profiles := map[string]channel.Profile{}
	if err := s.call(ctx, methodGetUserInfo, getUserInfoParams{IDs: ids}, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *Session) FriendsList(ctx context.Context) ([]channel.Friend, error) {
	var friends []channel.Friend
	if err := s.call(ctx, methodGetFriendsList, nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// Listen subscribes to the event stream. The returned connection is done when the gateway
// socket closes, which the caller treats as a dropped session.
func (s *Session) Listen(ctx context.Context, handler channel.RemoteHandler) (channel.Connection, error) {
	if err := s.call(ctx, methodListen, nil, nil); err != nil {
		return nil, err
	}
	conn := channel.NewConnection(channel.TypeMessenger, func(context.Context) error {
		s.Close()
		return nil
	})
	go func() {
		defer conn.MarkDone()
		for {
			select {
			case <-ctx.Done():
				s.Close()
				return
			case <-s.closed:
				return
			case ev := <-s.events:
				handler(ctx, ev)
			}
		}
	}()
	s.logger.Info("listening for remote events")
	return conn, nil
}
