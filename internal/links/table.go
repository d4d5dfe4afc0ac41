package links

import (
	"errors"
	"sync"
	"time"
)

// ErrChannelLinked is returned by Add when the channel already has a link.
var ErrChannelLinked = errors.New("channel already linked")

// Table is the ordered set of active links. A channel holds at most one link.
// All methods are safe for concurrent use and return copies.
type Table struct {
	mu    sync.RWMutex
	links []Link
}

func NewTable() *Table {
	return &Table{}
}

// Add appends link, rejecting a second link for the same channel.
func (t *Table) Add(link Link) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.links {
		if existing.ChannelID == link.ChannelID {
			return ErrChannelLinked
		}
	}
	t.links = append(t.links, link)
	return nil
}

// RemoveByChannel deletes every link for channelID and returns how many were removed.
func (t *Table) RemoveByChannel(channelID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.links[:0]
	removed := 0
	for _, link := range t.links {
		if link.ChannelID == channelID {
			removed++
			continue
		}
		kept = append(kept, link)
	}
	clear(t.links[len(kept):])
	t.links = kept
	return removed
}

func (t *Table) FindAllByChannel(channelID string) []Link {
	return t.filter(func(l Link) bool { return l.ChannelID == channelID })
}

func (t *Table) FindAllByThread(threadID string) []Link {
	return t.filter(func(l Link) bool { return l.RemoteThreadID == threadID })
}

// All returns every link in insertion order.
func (t *Table) All() []Link {
	return t.filter(func(Link) bool { return true })
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.links)
}

// Restore replaces the table contents with links loaded from a snapshot.
// Typing state is reset and only the first link per channel is kept; the rest are returned.
func (t *Table) Restore(loaded []Link) (dropped []Link) {
	seen := make(map[string]struct{}, len(loaded))
	restored := make([]Link, 0, len(loaded))
	for _, link := range loaded {
		if _, ok := seen[link.ChannelID]; ok {
			dropped = append(dropped, link)
			continue
		}
		seen[link.ChannelID] = struct{}{}
		link.IsTyping = false
		link.TypingStartedAt = nil
		restored = append(restored, link)
	}
	t.mu.Lock()
	t.links = restored
	t.mu.Unlock()
	return dropped
}

// SetTyping records the typing flag for the link on channelID. It reports whether the flag
// changed; a start transition stamps TypingStartedAt with now.
func (t *Table) SetTyping(channelID string, typing bool, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.links {
		link := &t.links[i]
		if link.ChannelID != channelID {
			continue
		}
		if link.IsTyping == typing {
			return false
		}
		link.IsTyping = typing
		if typing {
			link.TypingStartedAt = NewTimestamp(now)
		}
		return true
	}
	return false
}

// TypingSince returns when typing started on channelID, and false if the link is idle or gone.
func (t *Table) TypingSince(channelID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, link := range t.links {
		if link.ChannelID != channelID {
			continue
		}
		if !link.IsTyping || link.TypingStartedAt == nil {
			return time.Time{}, false
		}
		return link.TypingStartedAt.Time, true
	}
	return time.Time{}, false
}

func (t *Table) filter(match func(Link) bool) []Link {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Link
	for _, link := range t.links {
		if match(link) {
			out = append(out, clone(link))
		}
	}
	return out
}

func clone(link Link) Link {
	if link.TypingStartedAt != nil {
		ts := *link.TypingStartedAt
		link.TypingStartedAt = &ts
	}
	return link
}
