// Package redisstore keeps the snapshot as a JSON string under one Redis key.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memohai/facebot/internal/snapshot"
)

const backendName = "redis"

// Client is the subset of *redis.Client the store needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type Store struct {
	client Client
	key    string
}

func New(client Client, key string) *Store {
	return &Store{client: client, key: key}
}

// Dial parses a redis:// URL and returns a connected client.
func Dial(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *Store) Name() string { return backendName }

func (s *Store) Load(ctx context.Context) (snapshot.Snapshot, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return snapshot.Snapshot{}, &snapshot.LoadError{Backend: backendName, Err: snapshot.ErrNotFound}
	}
	if err != nil {
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
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return &snapshot.SaveError{Backend: backendName, Err: err}
	}
	return nil
}
