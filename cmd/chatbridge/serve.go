package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/temaline/chatbridge/internal/amocrm"
	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/config"
	"github.com/temaline/chatbridge/internal/db"
	"github.com/temaline/chatbridge/internal/edna"
	"github.com/temaline/chatbridge/internal/handlers"
	"github.com/temaline/chatbridge/internal/link"
	"github.com/temaline/chatbridge/internal/logger"
	"github.com/temaline/chatbridge/internal/route"
	"github.com/temaline/chatbridge/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			loadConfig,
			provideLogger,
			provideStore,
			provideEdnaClient,
			provideAmojoClient,
			provideRestClient,
			provideSourceClient,
			provideTasks,
			provideProvisioner,
			provideEdnaRouter,
			provideAmoRouter,
			provideStatusRouter,
			provideEdnaWebhookHandler,
			provideAmoWebhookHandler,
			handlers.NewHealthHandler,
			provideServer,
		),
		fx.Invoke(
			registerClientStartup,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (link.Store, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn("using in-memory link store, links will not survive restarts")
		return link.NewMemoryStore(), nil
	}

	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return link.NewPostgresStore(pool), nil
}

func provideEdnaClient(log *slog.Logger, cfg config.Config) *edna.Client {
	return edna.NewClient(log, cfg.Edna)
}

func provideAmojoClient(log *slog.Logger, cfg config.Config) *amocrm.AmojoClient {
	return amocrm.NewAmojoClient(log, cfg.AmoCRM)
}

func provideRestClient(log *slog.Logger, cfg config.Config) *amocrm.RestClient {
	return amocrm.NewRestClient(log, cfg.AmoCRM)
}

func provideSourceClient(log *slog.Logger, cfg config.Config) *amocrm.SourceClient {
	return amocrm.NewSourceClient(log, cfg.AmoCRM)
}

func provideTasks(log *slog.Logger) *route.Tasks {
	return route.NewTasks(log)
}

func provideProvisioner(log *slog.Logger, cfg config.Config, store link.Store, amojo *amocrm.AmojoClient, sources *amocrm.SourceClient) *route.Provisioner {
	if !cfg.AmoCRM.AutoCreateChats {
		return nil
	}
	cache := route.NewSourceCache(sources, cfg.AmoCRM.SourceName, cfg.AmoCRM.SourceExternalID, cfg.AmoCRM.SourcePipelineID)
	return route.NewProvisioner(log, store, amojo, cache)
}

func provideEdnaRouter(log *slog.Logger, cfg config.Config, store link.Store, amojo *amocrm.AmojoClient, rest *amocrm.RestClient, provisioner *route.Provisioner, tasks *route.Tasks) *route.EdnaRouter {
	var contacts bridge.ContactDirectory
	if cfg.AmoCRM.Token != "" {
		contacts = rest
	}
	delay := time.Duration(cfg.Route.EnrichDelaySeconds) * time.Second
	return route.NewEdnaRouter(log, store, amojo, provisioner, contacts, tasks, delay)
}

func provideAmoRouter(log *slog.Logger, store link.Store, ednaClient *edna.Client, amojo *amocrm.AmojoClient, tasks *route.Tasks) *route.AmoRouter {
	return route.NewAmoRouter(log, store, ednaClient, amojo, tasks)
}

func provideStatusRouter(log *slog.Logger, store link.Store, amojo *amocrm.AmojoClient) *route.StatusRouter {
	return route.NewStatusRouter(log, store, amojo)
}

func provideEdnaWebhookHandler(log *slog.Logger, cfg config.Config, messages *route.EdnaRouter, statuses *route.StatusRouter) *handlers.EdnaWebhookHandler {
	return handlers.NewEdnaWebhookHandler(log, messages, statuses, cfg.Edna.WebhookToken)
}

func provideAmoWebhookHandler(log *slog.Logger, messages *route.AmoRouter) *handlers.AmoWebhookHandler {
	return handlers.NewAmoWebhookHandler(log, messages)
}

func provideServer(log *slog.Logger, cfg config.Config, healthHandler *handlers.HealthHandler, ednaHandler *handlers.EdnaWebhookHandler, amoHandler *handlers.AmoWebhookHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, healthHandler, ednaHandler, amoHandler)
}

// registerClientStartup connects to both platforms at boot: the amojo
// channel is bound to the account to obtain a scope id, and the edna
// callback URLs are (re)registered.
func registerClientStartup(lc fx.Lifecycle, logger *slog.Logger, ednaClient *edna.Client, amojo *amocrm.AmojoClient) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := amojo.EnsureReady(ctx); err != nil {
				return fmt.Errorf("amojo connect: %w", err)
			}
			if err := ednaClient.EnsureReady(ctx); err != nil {
				logger.Warn("edna callback registration failed", slog.Any("error", err))
			}
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
