package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/memohai/facebot/internal/boot"
	"github.com/memohai/facebot/internal/config"
	"github.com/memohai/facebot/internal/db"
	"github.com/memohai/facebot/internal/snapshot"
	"github.com/memohai/facebot/internal/snapshot/filestore"
	"github.com/memohai/facebot/internal/snapshot/pgstore"
	"github.com/memohai/facebot/internal/snapshot/redisstore"
	"github.com/memohai/facebot/internal/snapshot/sqlitestore"
)

const connectTimeout = 15 * time.Second

// provideStore opens the configured snapshot backend and closes it on shutdown.
func provideStore(lc fx.Lifecycle, log *slog.Logger, rc *boot.RuntimeConfig) (snapshot.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch rc.Backend {
	case config.BackendFile:
		return filestore.New(rc.FilePath), nil

	case config.BackendPostgres:
		if err := migrateOnStart(log, rc); err != nil {
			return nil, err
		}
		pool, err := db.Open(ctx, rc.DatabaseURL)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			pool.Close()
			return nil
		}})
		return pgstore.New(pool), nil

	case config.BackendRedis:
		client, err := redisstore.Dial(ctx, rc.RedisURL)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			return client.Close()
		}})
		return redisstore.New(client, rc.RedisKey), nil

	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, rc.SQLitePath)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			return store.Close()
		}})
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", rc.Backend)
	}
}
