package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/archboard/internal/attachments"
	"github.com/example/archboard/internal/config"
	"github.com/example/archboard/internal/engine"
	"github.com/example/archboard/internal/httpapi"
	"github.com/example/archboard/internal/identity"
	"github.com/example/archboard/internal/localcache"
	"github.com/example/archboard/internal/notify"
	"github.com/example/archboard/internal/observability"
	"github.com/example/archboard/internal/presence"
	"github.com/example/archboard/internal/remote"
	"github.com/example/archboard/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := log.With().Str("app", cfg.AppName).Str("board", cfg.BoardID).Logger()
	observability.RegisterRuntimeCollectors()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := observability.Start(ctx, observability.Config{
		ServiceName:  cfg.AppName,
		MetricsAddr:  cfg.MetricsAddr,
		OTLPEndpoint: cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer telemetryShutdown(context.Background())

	resources, err := config.NewResources(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize resources")
	}
	defer resources.Close()

	cache, err := localcache.New(cfg.CacheDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open local cache")
	}
	cache.Load()

	var store remote.Store
	if resources.Postgres != nil {
		pgStore := remote.NewPostgresStore(resources.Postgres, resources.Redis, cfg.BoardID, logger)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare board schema")
		}
		store = pgStore
	} else {
		logger.Warn().Msg("POSTGRES_URL not set; using in-memory demo store")
		store = remote.NewMemoryStore()
	}

	var ident *identity.StaticProvider
	if cfg.UserID != "" {
		ident = identity.NewStaticProvider(&identity.Identity{
			UserID: cfg.UserID,
			Email:  cfg.UserEmail,
		})
	} else {
		// Signed out until the session layer installs an identity;
		// synchronization stays suspended.
		ident = identity.NewStaticProvider(nil)
	}

	notifier := notify.NewQueueNotifier(resources.Redis, logger)

	eng := engine.New(cache, store, ident, notifier, logger, nil, engine.Config{
		FieldDebounce: cfg.FieldDebounce,
		DragDebounce:  cfg.DragDebounce,
		PollInterval:  cfg.PollInterval,
	})

	feed := ws.NewFeed(logger)
	eng.OnChange(feed.BroadcastBoard)
	eng.OnStatus(func(s engine.Status) { feed.BroadcastStatus(string(s)) })

	pres := presence.NewService(resources.Redis, cfg.BoardID, logger)
	pres.OnChange(func(roster []presence.Entry) { feed.BroadcastPresence(roster) })
	pres.Start(ctx)

	var att *attachments.Service
	if resources.Object != nil {
		att = attachments.NewService(resources.Object, cfg.ObjectBucket, logger)
	}

	eng.Start(ctx)
	defer eng.Stop()

	api := httpapi.NewHandler(eng, att, pres, ident, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", feed)
	mux.Handle("/", api)
	httpServer := &http.Server{Addr: cfg.HTTPListenAddr, Handler: mux}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("http server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server failed")
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.HealthcheckProbe)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := resources.HealthCheck(context.Background()); err != nil {
					logger.Error().Err(err).Msg("dependency healthcheck failed")
				} else {
					logger.Debug().Msg("dependency healthcheck ok")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info().Msg("board agent initialized")
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced http shutdown")
	}
}
