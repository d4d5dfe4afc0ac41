// Package pgstore keeps the snapshot in the PostgreSQL settings table (row id 1).
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/memohai/facebot/internal/db"
	"github.com/memohai/facebot/internal/snapshot"
)

const (
	backendName = "postgres"
	settingsRow = 1

	selectSettings = `SELECT settings_json FROM settings WHERE id = $1`
	upsertSettings = `INSERT INTO settings (id, settings_json, updated_at) VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET settings_json = EXCLUDED.settings_json, updated_at = now()`
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	q Querier
}

func New(q Querier) *Store {
	return &Store{q: q}
}

func (s *Store) Name() string { return backendName }

func (s *Store) Load(ctx context.Context) (snapshot.Snapshot, error) {
	var raw []byte
	err := s.q.QueryRow(ctx, selectSettings, settingsRow).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return snapshot.Snapshot{}, &snapshot.LoadError{Backend: backendName, Err: snapshot.ErrNotFound}
	case db.IsUndefinedTable(err):
		return snapshot.Snapshot{}, &snapshot.LoadError{
			Backend: backendName,
			Err:     fmt.Errorf("settings table missing, run `facebot migrate up`: %w", snapshot.ErrNotFound),
		}
	case err != nil:
		return snapshot.Snapshot{}, &snapshot.LoadError{Backend: backendName, Err: err}
	}
	snap, err := snapshot.Decode(raw)
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
	if _, err := s.q.Exec(ctx, upsertSettings, settingsRow, data); err != nil {
		return &snapshot.SaveError{Backend: backendName, Err: err}
	}
	return nil
}
