package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gabriel/tatakai-scraper/internal/catalog"
)

// CatalogService is the part of the pipeline the lookup commands use.
type CatalogService interface {
	Search(ctx context.Context, title string) (catalog.SearchResult, bool, error)
	Anime(ctx context.Context, slug string, episodeFilter *int) (catalog.TitleDetail, bool, error)
}

// CachePruner removes expired rows from a persistent cache.
type CachePruner interface {
	CountExpired(ctx context.Context, now time.Time) (int, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Dependencies holds the services bound into command Run methods.
type Dependencies struct {
	Ctx     context.Context
	Stdout  io.Writer
	Stderr  io.Writer
	Catalog CatalogService
	Pruner  CachePruner
	Now     func() time.Time
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Search     SearchCmd     `cmd:"" help:"Search the upstream catalog by title"`
	Anime      AnimeCmd      `cmd:"" help:"Show a title with its episodes and servers"`
	PruneCache PruneCacheCmd `cmd:"" name:"prune-cache" help:"Delete expired rows from the sqlite cache"`
}

type SearchCmd struct {
	Title string `arg:"" help:"Title to search for"`
}

func (c *SearchCmd) Run(deps *Dependencies) error {
	result, hit, err := deps.Catalog.Search(deps.Ctx, c.Title)
	if err != nil {
		return fmt.Errorf("search %q: %w", c.Title, err)
	}
	if hit {
		fmt.Fprintln(deps.Stderr, "served from cache")
	}
	return writeJSON(deps.Stdout, result)
}

type AnimeCmd struct {
	Slug string `arg:"" help:"Title slug"`
	Ep   int    `short:"e" help:"Only show this episode number (0 = all)"`
}

func (c *AnimeCmd) Run(deps *Dependencies) error {
	var filter *int
	if c.Ep > 0 {
		filter = &c.Ep
	}
	detail, hit, err := deps.Catalog.Anime(deps.Ctx, c.Slug, filter)
	if err != nil {
		return fmt.Errorf("anime %q: %w", c.Slug, err)
	}
	if hit {
		fmt.Fprintln(deps.Stderr, "served from cache")
	}
	return writeJSON(deps.Stdout, detail)
}

type PruneCacheCmd struct {
	Apply bool `help:"Delete the rows instead of only counting them"`
}

func (c *PruneCacheCmd) Run(deps *Dependencies) error {
	if deps.Pruner == nil {
		return fmt.Errorf("prune-cache requires CACHE_BACKEND=sqlite")
	}

	now := deps.Now()
	if !c.Apply {
		count, err := deps.Pruner.CountExpired(deps.Ctx, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(deps.Stdout, "expired cache entries: %d (dry run, pass --apply to delete)\n", count)
		return nil
	}

	removed, err := deps.Pruner.Sweep(deps.Ctx, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "deleted expired cache entries: %d\n", removed)
	return nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
