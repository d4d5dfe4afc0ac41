// Package messenger reaches the personal messaging account through a websocket gateway that
// hosts the logged-in session.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/memohai/facebot/internal/channel"
)

const (
	defaultDialTimeout = 15 * time.Second
	defaultCallTimeout = 60 * time.Second
)

type Config struct {
	GatewayURL  string
	DialTimeout time.Duration
	CallTimeout time.Duration
}

// Adapter implements channel.RemoteAuthenticator. Every Login opens a fresh gateway socket.
type Adapter struct {
	logger *slog.Logger
	cfg    Config
	dialer *websocket.Dialer
}

func NewAdapter(log *slog.Logger, cfg Config) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "messenger")),
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
	}
}

func (a *Adapter) Type() channel.ChannelType {
	return channel.TypeMessenger
}

// Login opens a gateway session and authenticates it with saved state or credentials.
// A rejected login wraps channel.ErrAuthentication.
func (a *Adapter) Login(ctx context.Context, req channel.LoginRequest) (channel.RemoteSession, error) {
	params := loginParams{AppState: req.AppState}
	mode := "app_state"
	if len(req.AppState) == 0 {
		if req.Credentials == nil {
			return nil, fmt.Errorf("%w: no app state or credentials", channel.ErrAuthentication)
		}
		params = loginParams{Email: req.Credentials.Email, Password: req.Credentials.Password}
		mode = "credentials"
	}

	conn, _, err := a.dialer.DialContext(ctx, a.cfg.GatewayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial messenger gateway: %w", err)
	}
	s := newSession(a.logger, conn, a.cfg.CallTimeout)

	var res loginResult
	if err := s.call(ctx, methodLogin, params, &res); err != nil {
		s.Close()
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			return nil, fmt.Errorf("%w: %s", channel.ErrAuthentication, gwErr.Message)
		}
		return nil, err
	}
	s.setAppState(res.AppState)
	a.logger.Info("logged in", slog.String("mode", mode))
	return s, nil
}
