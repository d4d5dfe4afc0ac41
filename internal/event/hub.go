// Package event provides an in-process hub for bridge state-change notifications.
package event

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the default per-subscriber channel buffer.
	DefaultBufferSize = 16

	// TopicSnapshot carries events that make the persisted snapshot stale.
	TopicSnapshot = "snapshot"
)

// Type identifies the event category.
type Type string

const (
	// TypeLinksChanged is emitted after a link is created or removed.
	TypeLinksChanged Type = "links_changed"
	// TypeSessionEstablished is emitted after the remote login succeeds.
	TypeSessionEstablished Type = "session_established"
	// TypeFlushRequested is emitted by the scheduler to refresh the stored credentials.
	TypeFlushRequested Type = "flush_requested"
)

// Event is the payload delivered to subscribers of a topic.
type Event struct {
	Type  Type            `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Publisher publishes events to subscribers.
type Publisher interface {
	Publish(event Event)
}

// Subscriber subscribes to topic-scoped events.
type Subscriber interface {
	Subscribe(topic string, buffer int) (string, <-chan Event, func())
}

// Hub is an in-process pub/sub dispatcher for topic-scoped events.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[string]chan Event
}

// NewHub creates an empty event hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[string]map[string]chan Event{},
	}
}

// Publish broadcasts one event to all subscribers of its topic.
// Slow subscribers miss the event instead of blocking the publisher.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	topic := strings.TrimSpace(event.Topic)
	if topic == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.streams[topic] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers one subscriber under a topic.
// It returns a stream ID, read-only event channel, and a cancel function.
func (h *Hub) Subscribe(topic string, buffer int) (string, <-chan Event, func()) {
	if h == nil {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	streamID := uuid.NewString()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	streams, ok := h.streams[topic]
	if !ok {
		streams = map[string]chan Event{}
		h.streams[topic] = streams
	}
	streams[streamID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			streams := h.streams[topic]
			if streams != nil {
				if current, ok := streams[streamID]; ok {
					delete(streams, streamID)
					close(current)
				}
				if len(streams) == 0 {
					delete(h.streams, topic)
				}
			}
			h.mu.Unlock()
		})
	}

	return streamID, ch, cancel
}
