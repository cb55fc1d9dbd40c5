package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/streamhub/internal/platform/analytics"
	"github.com/example/streamhub/internal/platform/auth"
	"github.com/example/streamhub/internal/platform/config"
	"github.com/example/streamhub/internal/platform/db"
	"github.com/example/streamhub/internal/platform/httpserver"
	"github.com/example/streamhub/internal/platform/logging"
	"github.com/example/streamhub/internal/platform/natsconn"
	"github.com/example/streamhub/internal/platform/run"
	"github.com/example/streamhub/services/progress/internal/catalog"
	progressconfig "github.com/example/streamhub/services/progress/internal/config"
	"github.com/example/streamhub/services/progress/internal/handlers"
	progresshttp "github.com/example/streamhub/services/progress/internal/http"
	"github.com/example/streamhub/services/progress/internal/migration"
	"github.com/example/streamhub/services/progress/internal/reconciler"
	"github.com/example/streamhub/services/progress/internal/series"
	"github.com/example/streamhub/services/progress/internal/store"
	"github.com/example/streamhub/services/progress/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	progCfg, err := progressconfig.LoadProgress()
	if err != nil {
		log.Error("load progress config", zap.Error(err))
		run.Exit(1)
	}

	pool, err := db.Open(context.Background())
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	// NATS is optional: without it, writes apply synchronously and analytics
	// events are dropped.
	var js nats.JetStreamContext
	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Warn("nats connect failed, async writes and analytics disabled", zap.Error(err))
	} else {
		defer nc.Close()
		if js, err = nc.JetStream(); err != nil {
			log.Warn("jetstream init failed", zap.Error(err))
		}
	}
	ap := analytics.New(js, log)

	catalogClient := catalog.New(progCfg.CatalogBaseURL)
	var episodes series.EpisodeLister = catalogClient
	if progCfg.RedisURL != "" {
		cache, err := catalog.NewRedisCache(progCfg.RedisURL, progCfg.CatalogCacheTTL)
		if err != nil {
			log.Error("redis cache init", zap.Error(err))
			run.Exit(1)
		}
		episodes = &catalog.CachedEpisodes{Source: catalogClient, Cache: cache, Log: log}
	}

	categories := catalog.NewCategoryCache(catalogClient, log)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = categories.Init(ctx)
	}()

	progressStore := store.NewPostgresProgressStore(pool)
	rec := reconciler.New(progressStore, categories, log)
	resolver := &series.Resolver{
		Catalog:           episodes,
		Store:             progressStore,
		Log:               log,
		NoRewatchFallback: progCfg.NoRewatchFallback,
	}
	migrator := migration.New(progressStore, log, ap)

	verifier := auth.JWTVerifier{Secret: progCfg.JWTSecret}
	limiter := progresshttp.NewRateLimiter(progCfg.RateLimitPerSec, progCfg.RateLimitBurst)
	publisher := handlers.NewEventPublisher(js, progCfg.AsyncWrites)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx)
	}})

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/v1/progress", handlers.RecordProgress(rec, publisher, ap))
			r.Delete("/v1/progress/{media_id}", handlers.RemoveProgress(rec, ap))
		})

		r.Get("/v1/progress/continue-watching", handlers.ContinueWatching(rec))
		r.Get("/v1/series/{series_id}/next-episode", handlers.NextEpisode(resolver, ap))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Post("/v1/progress/migrate", handlers.MigrateSession(migrator))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			worker.StartProgressConsumer(ctx, nc, pool, rec, log)
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
