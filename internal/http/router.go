package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/gabriel/tatakai-scraper/internal/config"
	"github.com/gabriel/tatakai-scraper/internal/http/handlers"
)

type Dependencies struct {
	Catalog handlers.CatalogService
	Limiter handlers.RateLimiter
	// CachePinger is nil for the in-memory cache.
	CachePinger handlers.Pinger
	Logger      *slog.Logger
}

func NewServer(cfg config.Config, deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: cfg.AppName,
	})

	app.Use(recover.New())
	app.Use(handlers.RequestID())
	app.Use(handlers.CORS())

	health := handlers.NewHealthHandler(cfg.CacheBackend, deps.CachePinger)
	catalogHandler := handlers.NewCatalogHandler(deps.Catalog, deps.Limiter, handlers.CatalogOptions{
		Debug:          cfg.Debug,
		UseRemoteAddr:  cfg.RateLimitUseRemoteAddr,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         deps.Logger,
	})

	app.Get("/health", health.Check)
	app.Get("/", catalogHandler.Handle)
	app.Get("/api", catalogHandler.Handle)

	return app
}
