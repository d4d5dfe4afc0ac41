// Package typing relays remote typing indicators to workspace channels.
package typing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxDuration = 5 * time.Minute
)

// State stores the per-link typing flag.
type State interface {
	SetTyping(channelID string, typing bool, now time.Time) bool
	TypingSince(channelID string) (time.Time, bool)
}

// Signaler shows the typing indicator in a workspace channel once.
type Signaler interface {
	SendTyping(ctx context.Context, channelID string) error
}

type Options struct {
	Interval    time.Duration
	MaxDuration time.Duration
	Now         func() time.Time
}

// Tracker runs at most one keep-alive loop per channel. A loop repeats the indicator while
// the link is typing and the typing started no more than MaxDuration ago.
type Tracker struct {
	state    State
	signal   Signaler
	interval time.Duration
	maxDur   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

func NewTracker(log *slog.Logger, state State, signal Signaler, opts Options) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		state:    state,
		signal:   signal,
		interval: opts.Interval,
		maxDur:   opts.MaxDuration,
		now:      opts.Now,
		logger:   log.With(slog.String("component", "typing")),
		active:   map[string]struct{}{},
	}
}

// Observe applies a remote typing event to the link on channelID. It reports whether a new
// keep-alive loop was started. Repeated events with the same flag are ignored.
func (t *Tracker) Observe(ctx context.Context, channelID string, typing bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.SetTyping(channelID, typing, t.now()) || !typing {
		return false
	}
	if _, running := t.active[channelID]; running {
		return false
	}
	t.active[channelID] = struct{}{}
	t.wg.Add(1)
	go t.keepAlive(ctx, channelID)
	return true
}

func (t *Tracker) running(channelID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[channelID]
	return ok
}

// Wait blocks until every keep-alive loop has exited.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) keepAlive(ctx context.Context, channelID string) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if !t.continueLoop(channelID) {
			return
		}
		if err := t.signal.SendTyping(ctx, channelID); err != nil {
			t.logger.Warn("send typing failed", slog.String("channel", channelID), slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			t.mu.Lock()
			delete(t.active, channelID)
			t.mu.Unlock()
			return
		case <-ticker.C:
		}
	}
}

// continueLoop checks liveness and deregisters the loop in the same critical section as
// Observe, so a start racing with loop exit always ends with exactly one loop.
func (t *Tracker) continueLoop(channelID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	since, typing := t.state.TypingSince(channelID)
	if typing && t.now().Sub(since) <= t.maxDur {
		return true
	}
	delete(t.active, channelID)
	if typing {
		// a missed stop event must not debounce the next start
		t.state.SetTyping(channelID, false, t.now())
		t.logger.Debug("typing indicator timed out", slog.String("channel", channelID))
	}
	return false
}
