// Package filestore keeps the snapshot in a local JSON file.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/memohai/facebot/internal/snapshot"
)

const backendName = "file"

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Name() string { return backendName }

func (s *Store) Load(_ context.Context) (snapshot.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snapshot.Snapshot{}, &snapshot.LoadError{Backend: backendName, Err: snapshot.ErrNotFound}
		}
		return snapshot.Snapshot{}, &snapshot.LoadError{Backend: backendName, Err: err}
	}
	snap, err := snapshot.Decode(data)
	if err != nil {
		return snapshot.Snapshot{}, &snapshot.LoadError{Backend: backendName, Err: err}
	}
	return snap, nil
}

// Save writes through a temp file and rename so a crash never leaves a truncated snapshot.
func (s *Store) Save(_ context.Context, snap snapshot.Snapshot) error {
	data, err := snapshot.Encode(snap)
	if err != nil {
		return &snapshot.SaveError{Backend: backendName, Err: err}
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".facebot-*.json")
	if err != nil {
		return &snapshot.SaveError{Backend: backendName, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &snapshot.SaveError{Backend: backendName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &snapshot.SaveError{Backend: backendName, Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return &snapshot.SaveError{Backend: backendName, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &snapshot.SaveError{Backend: backendName, Err: fmt.Errorf("replace %s: %w", s.path, err)}
	}
	return nil
}
