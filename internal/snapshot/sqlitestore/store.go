// Package sqlitestore keeps the snapshot in a local SQLite settings table (row id 1).
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/memohai/facebot/internal/snapshot"
)

const (
	backendName = "sqlite"
	settingsRow = 1

	createSettings = `CREATE TABLE IF NOT EXISTS settings (
  id INTEGER PRIMARY KEY,
  settings_json TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	selectSettings = `SELECT settings_json FROM settings WHERE id = ?`
	upsertSettings = `INSERT INTO settings (id, settings_json, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET settings_json = excluded.settings_json, updated_at = CURRENT_TIMESTAMP`
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the settings table exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout=5000", createSettings} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare settings table: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Name() string { return backendName }

func (s *Store) Load(ctx context.Context) (snapshot.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, selectSettings, settingsRow).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, &snapshot.LoadError{Backend: backendName, Err: snapshot.ErrNotFound}
	}
	if err != nil {
		return snapshot.Snapshot{}, &snapshot.LoadError{Backend: backendName, Err: err}
	}
	snap, err := snapshot.Decode([]byte(raw))
	if err != nil {
		return snapshot.Snapshot{}, &snapshot.LoadError{Backend: backendName, Err: err}
	}
	return snap, nil
}

func (s *Store) Save(ctx context.Context, snap snapshot.Snapshot) error {
	data, err := snapshot.Encode(snap)
	if err != nil {
		return &snapshot.SaveError{Backend: backendName, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, upsertSettings, settingsRow, string(data)); err != nil {
		return &snapshot.SaveError{Backend: backendName, Err: err}
	}
	return nil
}
