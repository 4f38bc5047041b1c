package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/gabriel/tatakai-scraper/internal/cache"
	"github.com/gabriel/tatakai-scraper/internal/config"
	"github.com/gabriel/tatakai-scraper/internal/database"
	"github.com/gabriel/tatakai-scraper/internal/extractor"
	"github.com/gabriel/tatakai-scraper/internal/fetcher"
	"github.com/gabriel/tatakai-scraper/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	slog.SetDefault(slog.New(handler))

	m := NewMain(cfg)
	if err := m.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	Config config.Config

	// Set to bypass wiring from Config, as tests do.
	Catalog CatalogService
	Pruner  CachePruner
	Now     func() time.Time

	db *sql.DB
}

func NewMain(cfg config.Config) *Main {
	return &Main{Config: cfg, Now: time.Now}
}

func (m *Main) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
		Now:    m.Now,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("catalogctl"),
		kong.Description("Query the upstream catalog and maintain the cache."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'catalogctl --help' to see available commands")
	}
	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	defer m.Close()

	switch cmd {
	case "search", "anime":
		if err := m.wireCatalog(); err != nil {
			return err
		}
		deps.Catalog = m.Catalog
	case "prune-cache":
		if err := m.wirePruner(); err != nil {
			return err
		}
		deps.Pruner = m.Pruner
	}

	return kongCtx.Run(deps)
}

// openStore opens the configured cache store. A sqlite store is also
// returned as the pruner.
func (m *Main) openStore() (cache.Store, *cache.SQLite, error) {
	if m.Config.CacheBackend != config.CacheBackendSQLite {
		return cache.NewMemory(), nil, nil
	}
	if m.db == nil {
		db, err := database.Open(m.Config.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := database.ApplyMigrations(db, m.Config.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		m.db = db
	}
	store := cache.NewSQLite(m.db, nil)
	return store, store, nil
}

func (m *Main) wireCatalog() error {
	if m.Catalog != nil {
		return nil
	}

	store, _, err := m.openStore()
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	servers, err := extractor.LoadServerRegistry(m.Config.ServersFile)
	if err != nil {
		return err
	}
	searchExtractor, err := extractor.NewSearchExtractor(m.Config.UpstreamBaseURL)
	if err != nil {
		return err
	}
	detailExtractor, err := extractor.NewDetailExtractor(m.Config.UpstreamBaseURL, servers, slog.Default())
	if err != nil {
		return err
	}

	pageFetcher := fetcher.NewFetcher(
		fetcher.WithTimeout(m.Config.FetchTimeout),
		fetcher.WithMaxRetries(m.Config.FetchMaxRetries),
		fetcher.WithReferer(m.Config.UpstreamBaseURL+"/"),
		fetcher.WithHostRateLimit(m.Config.UpstreamRPS),
		fetcher.WithCloudflareBypass(m.Config.UpstreamCloudflareBypass),
	)

	m.Catalog = pipeline.NewService(pipeline.Config{
		BaseURL:    m.Config.UpstreamBaseURL,
		SearchPath: m.Config.UpstreamSearchPath,
		DetailPath: m.Config.UpstreamDetailPath,
		SearchTTL:  m.Config.SearchCacheTTL,
		DetailTTL:  m.Config.DetailCacheTTL,
	}, pageFetcher, store, searchExtractor, detailExtractor, slog.Default())
	return nil
}

func (m *Main) wirePruner() error {
	if m.Pruner != nil {
		return nil
	}
	_, pruner, err := m.openStore()
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	if pruner != nil {
		m.Pruner = pruner
	}
	return nil
}
