package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/pagebridge/pagebridge/internal/adapter"
	"github.com/pagebridge/pagebridge/internal/bots"
	"github.com/pagebridge/pagebridge/internal/config"
	"github.com/pagebridge/pagebridge/internal/handoff"
	"github.com/pagebridge/pagebridge/internal/logger"
	"github.com/pagebridge/pagebridge/internal/platform"
	"github.com/pagebridge/pagebridge/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			providePageClient,
			provideRecognizer,
			provideAdapter,
			provideBot,
			provideWebhookHandler,
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func providePageClient(log *slog.Logger, cfg config.Config) platform.Client {
	return platform.NewPageClient(log, platform.Options{
		BaseURL:           cfg.Page.BaseURL,
		Version:           cfg.Page.APIVersion,
		AccessToken:       cfg.Page.AccessToken,
		AppSecret:         cfg.Page.AppSecret,
		VerifyToken:       cfg.Page.VerifyToken,
		Timeout:           cfg.Page.Timeout(),
		RequestsPerSecond: cfg.Page.RequestsPerSecond,
	})
}

func provideRecognizer() handoff.Recognizer {
	return handoff.NewPatternRecognizer()
}

func provideAdapter(log *slog.Logger, client platform.Client, recognizer handoff.Recognizer) *adapter.Adapter {
	return adapter.New(log, client, recognizer)
}

func provideBot(log *slog.Logger) adapter.Bot {
	return bots.NewEchoBot(log)
}

func provideWebhookHandler(log *slog.Logger, a *adapter.Adapter, bot adapter.Bot) *adapter.WebhookHandler {
	return adapter.NewWebhookHandler(log, a, bot)
}

func provideServer(log *slog.Logger, cfg config.Config, handler *adapter.WebhookHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, handler)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("server stopped", slog.Any("error", err))
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
