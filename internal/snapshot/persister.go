package snapshot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/memohai/facebot/internal/event"
)

// ErrNoSession is returned by a Source that has nothing worth saving yet.
var ErrNoSession = errors.New("remote session not established")

// Source produces the current state to persist.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Persister writes a fresh snapshot whenever the snapshot topic fires.
// Events that arrive while a save is in flight collapse into one follow-up save.
type Persister struct {
	store  Store
	source Source
	sub    event.Subscriber
	logger *slog.Logger
}

func NewPersister(log *slog.Logger, store Store, source Source, sub event.Subscriber) *Persister {
	if log == nil {
		log = slog.Default()
	}
	return &Persister{
		store:  store,
		source: source,
		sub:    sub,
		logger: log.With(slog.String("component", "snapshot"), slog.String("backend", store.Name())),
	}
}

// Start subscribes before returning, so events published right after it are not missed.
// The returned stop function ends the loop and waits for an in-flight save.
func (p *Persister) Start(ctx context.Context) (stop func()) {
	_, stream, unsubscribe := p.sub.Subscribe(event.TopicSnapshot, 1)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsubscribe()
		p.consume(ctx, stream)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Persister) consume(ctx context.Context, stream <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("snapshot flush failed", slog.String("trigger", string(ev.Type)), slog.Any("error", err))
			}
		}
	}
}

// Flush saves the current state once. A Source without a session is skipped silently.
func (p *Persister) Flush(ctx context.Context) error {
	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			p.logger.Debug("snapshot skipped, no session")
			return nil
		}
		return err
	}
	if err := p.store.Save(ctx, snap); err != nil {
		return err
	}
	p.logger.Debug("snapshot saved", slog.Int("links", len(snap.ChannelLinks)))
	return nil
}
