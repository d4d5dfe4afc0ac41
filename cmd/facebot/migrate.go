package main

import (
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	dbembed "github.com/memohai/facebot/db"
	"github.com/memohai/facebot/internal/boot"
	"github.com/memohai/facebot/internal/config"
	"github.com/memohai/facebot/internal/db"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version|force N]",
		Short:     "Manage the PostgreSQL settings schema",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"up", "down", "version", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			dsn := cfg.Storage.DatabaseURL
			if dsn == "" {
				dsn = db.DSN(cfg.Postgres)
			}
			return db.RunMigrate(log, dsn, migrations(), args[0], args[1:])
		},
	}
}

func migrations() fs.FS {
	sub, err := fs.Sub(dbembed.MigrationsFS, "migrations")
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return sub
}

// migrateOnStart brings the settings table up to date before the postgres store is used.
func migrateOnStart(log *slog.Logger, rc *boot.RuntimeConfig) error {
	if rc.Backend != config.BackendPostgres {
		return nil
	}
	return db.RunMigrate(log, rc.DatabaseURL, migrations(), "up", nil)
}
