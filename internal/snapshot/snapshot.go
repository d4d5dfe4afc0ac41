// Package snapshot persists the remote credential state and the link table across restarts.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/memohai/facebot/internal/links"
)

// ErrNotFound means the backend holds no snapshot yet.
var ErrNotFound = errors.New("no persisted snapshot")

// Snapshot is the persisted blob. AppState is opaque to the bridge.
type Snapshot struct {
	AppState     json.RawMessage `json:"appState"`
	ChannelLinks []links.Link    `json:"channelLinks"`
}

// Store loads and saves snapshots on one backend.
type Store interface {
	Name() string
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// LoadError wraps any failure to obtain a usable snapshot. Callers recover from it.
type LoadError struct {
	Backend string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load snapshot from %s: %v", e.Backend, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError wraps a failed write. It is logged and never retried.
type SaveError struct {
	Backend string
	Err     error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save snapshot to %s: %v", e.Backend, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Encode serializes snap. A nil link list is written as an empty array.
func Encode(snap Snapshot) ([]byte, error) {
	if snap.ChannelLinks == nil {
		snap.ChannelLinks = []links.Link{}
	}
	if len(snap.AppState) == 0 {
		snap.AppState = json.RawMessage("null")
	}
	return json.Marshal(snap)
}

// Decode parses data produced by Encode or by the legacy saved_data.json writer.
func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, ErrNotFound
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(snap.AppState), []byte("null")) {
		snap.AppState = nil
	}
	if len(snap.ChannelLinks) == 0 {
		snap.ChannelLinks = nil
	}
	return snap, nil
}
