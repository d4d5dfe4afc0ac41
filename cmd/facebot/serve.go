package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/facebot/internal/boot"
	"github.com/memohai/facebot/internal/channel"
	"github.com/memohai/facebot/internal/channel/adapters/messenger"
	slackadapter "github.com/memohai/facebot/internal/channel/adapters/slack"
	"github.com/memohai/facebot/internal/config"
	"github.com/memohai/facebot/internal/event"
	"github.com/memohai/facebot/internal/handlers"
	"github.com/memohai/facebot/internal/relay"
	"github.com/memohai/facebot/internal/schedule"
	"github.com/memohai/facebot/internal/server"
	"github.com/memohai/facebot/internal/snapshot"
	"github.com/memohai/facebot/internal/version"
)

const startTimeout = 2 * time.Minute

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			app := newApp(cfg, log)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newApp(cfg config.Config, log *slog.Logger) *fx.App {
	return fx.New(
		fx.Supply(cfg, log),
		fx.Provide(
			boot.ProvideRuntimeConfig,
			event.NewHub,
			provideStore,
			provideWorkspace,
			provideAuthenticator,
			provideBridge,
			providePersister,
			provideScheduler,

			provideServerHandler(provideBridgeHandler),
			provideServer,
		),
		fx.Invoke(
			startPersister,
			startBridge,
			startScheduler,
			startServer,
		),
		fx.StartTimeout(startTimeout),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideWorkspace(log *slog.Logger, rc *boot.RuntimeConfig) *slackadapter.Adapter {
	return slackadapter.NewAdapter(log, slackadapter.Config{
		Token:         rc.SlackToken,
		RatePerSecond: rc.RatePerSecond,
	})
}

func provideAuthenticator(log *slog.Logger, rc *boot.RuntimeConfig) *messenger.Adapter {
	return messenger.NewAdapter(log, messenger.Config{GatewayURL: rc.GatewayURL})
}

func provideBridge(
	log *slog.Logger,
	rc *boot.RuntimeConfig,
	workspace *slackadapter.Adapter,
	auth *messenger.Adapter,
	store snapshot.Store,
	hub *event.Hub,
) *relay.Bridge {
	return relay.New(log, relay.Config{
		BotName:            rc.BotName,
		AuthorisedUsername: rc.AuthorisedUsername,
		DebugMessages:      rc.DebugMessages,
		WebRoot:            rc.WebRoot,
		Credentials:        channel.Credentials{Email: rc.Email, Password: rc.Password},
	}, relay.Deps{
		Workspace:     workspace,
		Authenticator: auth,
		Store:         store,
		Events:        hub,
	})
}

func providePersister(log *slog.Logger, store snapshot.Store, bridge *relay.Bridge, hub *event.Hub) *snapshot.Persister {
	return snapshot.NewPersister(log, store, bridge, hub)
}

func provideScheduler(log *slog.Logger, hub *event.Hub) *schedule.Service {
	return schedule.NewService(log, schedule.FlushTrigger{Events: hub})
}

func provideBridgeHandler(log *slog.Logger, bridge *relay.Bridge) *handlers.BridgeHandler {
	return handlers.NewBridgeHandler(log, bridge)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.ServerHandlers...)
}

func startPersister(lc fx.Lifecycle, persister *snapshot.Persister) {
	var stop func()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			stop = persister.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if stop != nil {
				stop()
			}
			return persister.Flush(ctx)
		},
	})
}

func startBridge(lc fx.Lifecycle, bridge *relay.Bridge, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting facebot", slog.String("version", version.GetInfo()))
			if err := bridge.Start(ctx); err != nil {
				return fmt.Errorf("bridge start: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return bridge.Stop(ctx)
		},
	})
}

func startScheduler(lc fx.Lifecycle, scheduler *schedule.Service, rc *boot.RuntimeConfig) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := scheduler.Add(schedule.FlushJob, rc.FlushSchedule); err != nil {
				return err
			}
			scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, rc *boot.RuntimeConfig, shutdowner fx.Shutdowner) {
	if rc.ServerAddr == "" {
		logger.Info("http server disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}
