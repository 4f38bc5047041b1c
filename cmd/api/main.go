package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gabriel/tatakai-scraper/internal/cache"
	"github.com/gabriel/tatakai-scraper/internal/config"
	"github.com/gabriel/tatakai-scraper/internal/database"
	"github.com/gabriel/tatakai-scraper/internal/extractor"
	"github.com/gabriel/tatakai-scraper/internal/fetcher"
	apihttp "github.com/gabriel/tatakai-scraper/internal/http"
	"github.com/gabriel/tatakai-scraper/internal/http/handlers"
	"github.com/gabriel/tatakai-scraper/internal/pipeline"
	"github.com/gabriel/tatakai-scraper/internal/ratelimit"
	"github.com/gabriel/tatakai-scraper/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	store, pinger, db, err := openCacheStore(cfg)
	if err != nil {
		slog.Error("failed to open cache store", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	servers, err := extractor.LoadServerRegistry(cfg.ServersFile)
	if err != nil {
		slog.Error("failed to load server registry", "path", cfg.ServersFile, "error", err)
		os.Exit(1)
	}
	searchExtractor, err := extractor.NewSearchExtractor(cfg.UpstreamBaseURL)
	if err != nil {
		slog.Error("invalid upstream base url", "url", cfg.UpstreamBaseURL, "error", err)
		os.Exit(1)
	}
	detailExtractor, err := extractor.NewDetailExtractor(cfg.UpstreamBaseURL, servers, logger)
	if err != nil {
		slog.Error("invalid upstream base url", "url", cfg.UpstreamBaseURL, "error", err)
		os.Exit(1)
	}

	pageFetcher := fetcher.NewFetcher(
		fetcher.WithTimeout(cfg.FetchTimeout),
		fetcher.WithMaxRetries(cfg.FetchMaxRetries),
		fetcher.WithReferer(cfg.UpstreamBaseURL+"/"),
		fetcher.WithHostRateLimit(cfg.UpstreamRPS),
		fetcher.WithCloudflareBypass(cfg.UpstreamCloudflareBypass),
		fetcher.WithLogger(logger),
	)

	service := pipeline.NewService(pipeline.Config{
		BaseURL:    cfg.UpstreamBaseURL,
		SearchPath: cfg.UpstreamSearchPath,
		DetailPath: cfg.UpstreamDetailPath,
		SearchTTL:  cfg.SearchCacheTTL,
		DetailTTL:  cfg.DetailCacheTTL,
	}, pageFetcher, store, searchExtractor, detailExtractor, logger)

	limiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)

	app := apihttp.NewServer(cfg, apihttp.Dependencies{
		Catalog:     service,
		Limiter:     limiter,
		CachePinger: pinger,
		Logger:      logger,
	})

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	janitor := scheduler.NewJanitor(store, limiter, scheduler.JanitorConfig{
		Interval: cfg.CacheSweepInterval,
	}, logger)
	janitor.Start(janitorCtx)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server stopped", "error", err)
		}
	}()

	slog.Info("api started",
		"port", cfg.Port,
		"env", cfg.Environment,
		"cacheBackend", cfg.CacheBackend,
		"upstream", cfg.UpstreamBaseURL,
		"servers", servers.Keys(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down server")
	janitorCancel()
	janitor.StopWait(2 * time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// openCacheStore returns the configured store. The sqlite backend also
// returns its database so the caller can close it.
func openCacheStore(cfg config.Config) (cache.Store, handlers.Pinger, *sql.DB, error) {
	if cfg.CacheBackend != config.CacheBackendSQLite {
		return cache.NewMemory(), nil, nil, nil
	}

	db, err := database.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.ApplyMigrations(db, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	store := cache.NewSQLite(db, nil)
	return store, store, db, nil
}
