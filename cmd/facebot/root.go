package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/facebot/internal/config"
	"github.com/memohai/facebot/internal/logger"
	"github.com/memohai/facebot/internal/version"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "facebot",
		Short:         "Relay private Slack channels to Facebook Messenger conversations",
		SilenceUsage:  true,
		SilenceErrors: false,
		Example: `facebot serve --config config.toml
facebot migrate up
facebot version`,
	}
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = config.DefaultConfigPath
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultPath, "path to a TOML or YAML config file")

	root.AddCommand(newServeCmd(opts), newMigrateCmd(opts), newVersionCmd())
	root.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	root.CompletionOptions.HiddenDefaultCmd = true
	return root
}

// loadConfig reads the config file and environment and initializes the global logger.
func loadConfig(opts *rootOptions) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, logger.L, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "facebot %s\n", version.GetInfo())
		},
	}
}
