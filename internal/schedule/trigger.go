package schedule

import (
	"context"

	"github.com/memohai/facebot/internal/event"
)

// Triggerer runs the work behind a scheduled job.
type Triggerer interface {
	TriggerSchedule(ctx context.Context, name string) error
}

// FlushTrigger asks the snapshot persister to refresh the stored session.
type FlushTrigger struct {
	Events event.Publisher
}

func (t FlushTrigger) TriggerSchedule(_ context.Context, _ string) error {
	t.Events.Publish(event.Event{Type: event.TypeFlushRequested, Topic: event.TopicSnapshot})
	return nil
}
