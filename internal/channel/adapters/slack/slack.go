// Package slack implements the workspace side of the bridge on the Slack RTM and Web APIs.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	slackapi "github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/memohai/facebot/internal/channel"
	"github.com/memohai/facebot/internal/channel/adapters/adapterutil"
)

var (
	errNotConnected  = errors.New("slack rtm not connected")
	errTypingPending = errors.New("slack typing indicator still pending")
)

// API is the subset of the Slack Web API the adapter calls.
type API interface {
	AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error)
	GetUsersContext(ctx context.Context, options ...slackapi.GetUsersOption) ([]slackapi.User, error)
	GetConversationsContext(ctx context.Context, params *slackapi.GetConversationsParameters) ([]slackapi.Channel, string, error)
	GetConversationInfoContext(ctx context.Context, input *slackapi.GetConversationInfoInput) (*slackapi.Channel, error)
	GetUsersInConversationContext(ctx context.Context, params *slackapi.GetUsersInConversationParameters) ([]string, string, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

type Config struct {
	Token         string
	RatePerSecond float64
	Debug         bool
}

// Adapter is a channel.Workspace backed by one bot token.
type Adapter struct {
	logger  *slog.Logger
	client  *slackapi.Client
	api     API
	limiter *rate.Limiter

	mu        sync.RWMutex
	users     map[string]channel.User
	rtm       *slackapi.RTM
	connected bool

	typingBusy atomic.Bool
}

func NewAdapter(log *slog.Logger, cfg Config) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	logger := log.With(slog.String("adapter", "slack"))
	client := slackapi.New(cfg.Token,
		slackapi.OptionLog(&slogOutput{log: logger}),
		slackapi.OptionDebug(cfg.Debug),
	)
	a := newAdapter(logger, client, cfg.RatePerSecond)
	a.client = client
	return a
}

func newAdapter(logger *slog.Logger, api API, ratePerSecond float64) *Adapter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Adapter{
		logger:  logger,
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 3),
		users:   map[string]channel.User{},
	}
}

func (a *Adapter) Type() channel.ChannelType {
	return channel.TypeSlack
}

// PostMessage posts to a channel, waiting on the rate limiter first.
func (a *Adapter) PostMessage(ctx context.Context, channelID string, post channel.Post) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, _, err := a.api.PostMessageContext(ctx, channelID, messageOptions(post)...)
	if err != nil {
		a.logger.Error("post message failed", slog.String("channel", channelID), slog.Any("error", err))
		return fmt.Errorf("slack post message: %w", err)
	}
	a.logger.Debug("message posted",
		slog.String("channel", channelID),
		slog.String("username", post.Username),
		slog.String("text", adapterutil.SummarizeText(post.Text)))
	return nil
}

// PostMessageToUser posts to the DM of the named user. Slack routes a user id used as
// channel to the bot's DM with that user.
func (a *Adapter) PostMessageToUser(ctx context.Context, username string, post channel.Post) error {
	user, err := a.LookupUser(ctx, username)
	if err != nil {
		return err
	}
	return a.PostMessage(ctx, user.ID, post)
}

func messageOptions(post channel.Post) []slackapi.MsgOption {
	opts := []slackapi.MsgOption{
		slackapi.MsgOptionText(post.Text, false),
		slackapi.MsgOptionAsUser(post.AsUser),
	}
	if post.Username != "" {
		opts = append(opts, slackapi.MsgOptionUsername(post.Username))
	}
	if post.IconURL != "" {
		opts = append(opts, slackapi.MsgOptionIconURL(post.IconURL))
	}
	if len(post.Attachments) > 0 {
		atts := make([]slackapi.Attachment, 0, len(post.Attachments))
		for _, img := range post.Attachments {
			atts = append(atts, slackapi.Attachment{ImageURL: img.ImageURL, Fallback: img.Fallback})
		}
		opts = append(opts, slackapi.MsgOptionAttachments(atts...))
	}
	return opts
}

// SendTyping emits a typing indicator over the RTM socket. The indicator is dropped while
// the socket is down or a previous one is still queued, so callers never block on it.
func (a *Adapter) SendTyping(ctx context.Context, channelID string) error {
	a.mu.RLock()
	rtm, connected := a.rtm, a.connected
	a.mu.RUnlock()
	if rtm == nil || !connected {
		return errNotConnected
	}
	if !a.typingBusy.CompareAndSwap(false, true) {
		return errTypingPending
	}
	sent := make(chan struct{})
	go func() {
		// blocks while the outgoing buffer is full and the socket is not draining it
		rtm.SendMessage(rtm.NewTypingMessage(channelID))
		a.typingBusy.Store(false)
		close(sent)
	}()
	select {
	case <-sent:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) setConnected(connected bool) {
	a.mu.Lock()
	a.connected = connected && a.rtm != nil
	a.mu.Unlock()
}

// Connect opens the RTM socket and delivers workspace events to handler until ctx is done
// or the connection is stopped.
func (a *Adapter) Connect(ctx context.Context, handler channel.WorkspaceHandler) (channel.Connection, error) {
	if a.client == nil {
		return nil, errors.New("slack connect: no client")
	}
	auth, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth test: %w", err)
	}
	a.logger.Info("start", slog.String("team", auth.Team), slog.String("bot_user", auth.User))

	rtm := a.client.NewRTM()
	a.mu.Lock()
	a.rtm = rtm
	a.connected = false
	a.mu.Unlock()
	go rtm.ManageConnection()

	connCtx, cancel := context.WithCancel(ctx)
	conn := channel.NewConnection(channel.TypeSlack, func(context.Context) error {
		cancel()
		return nil
	})
	go func() {
		defer conn.MarkDone()
		a.consume(connCtx, rtm.IncomingEvents, handler)
		a.mu.Lock()
		if a.rtm == rtm {
			a.rtm = nil
			a.connected = false
		}
		a.mu.Unlock()
		if err := rtm.Disconnect(); err != nil {
			a.logger.Warn("rtm disconnect failed", slog.Any("error", err))
		}
		a.logger.Info("stop")
	}()
	return conn, nil
}

// consume forwards RTM events until ctx is done, the channel closes, or auth is revoked.
func (a *Adapter) consume(ctx context.Context, events <-chan slackapi.RTMEvent, handler channel.WorkspaceHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-events:
			if !ok {
				return
			}
			switch data := raw.Data.(type) {
			case *slackapi.ConnectedEvent:
				a.setConnected(true)
				a.logger.Info("rtm connected", slog.Int("connection_count", data.ConnectionCount))
				continue
			case *slackapi.ConnectingEvent:
				a.setConnected(false)
				continue
			case *slackapi.DisconnectedEvent:
				a.setConnected(false)
				a.logger.Warn("rtm disconnected", slog.Bool("intentional", data.Intentional), slog.Any("error", data.Cause))
				continue
			case *slackapi.InvalidAuthEvent:
				a.setConnected(false)
				a.logger.Error("rtm invalid auth")
				return
			case *slackapi.ConnectionErrorEvent:
				a.logger.Warn("rtm connection error", slog.Int("attempt", data.Attempt), slog.Any("error", data.ErrorObj))
				continue
			}
			ev, ok := convertEvent(raw)
			if !ok {
				continue
			}
			handler(ctx, ev)
		}
	}
}
