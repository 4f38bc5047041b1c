// Package pipeline joins the cache, fetcher and extractors behind the two
// catalog operations the router serves.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/gabriel/tatakai-scraper/internal/cache"
	"github.com/gabriel/tatakai-scraper/internal/catalog"
	"github.com/gabriel/tatakai-scraper/internal/fetcher"
	"github.com/gabriel/tatakai-scraper/internal/textutil"
)

var tracer = otel.Tracer("tatakai/pipeline")

const (
	DefaultSearchPath = "/?s={query}"
	DefaultDetailPath = "/series/{slug}/"
	DefaultTTL        = 10 * time.Minute
)

type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts ...fetcher.RequestOption) (*fetcher.Response, error)
}

type Config struct {
	BaseURL    string
	SearchPath string
	DetailPath string
	SearchTTL  time.Duration
	DetailTTL  time.Duration
}

type Service struct {
	fetcher     PageFetcher
	search      catalog.SearchExtractor
	detail      catalog.DetailExtractor
	searchCache *cache.Typed[catalog.SearchResult]
	detailCache *cache.Typed[catalog.TitleDetail]
	group       singleflight.Group
	cfg         Config
	logger      *slog.Logger
}

func NewService(
	cfg Config,
	pageFetcher PageFetcher,
	store cache.Store,
	search catalog.SearchExtractor,
	detail catalog.DetailExtractor,
	logger *slog.Logger,
) *Service {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if strings.TrimSpace(cfg.SearchPath) == "" {
		cfg.SearchPath = DefaultSearchPath
	}
	if strings.TrimSpace(cfg.DetailPath) == "" {
		cfg.DetailPath = DefaultDetailPath
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = DefaultTTL
	}
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		fetcher:     pageFetcher,
		search:      search,
		detail:      detail,
		searchCache: cache.NewTyped[catalog.SearchResult](store),
		detailCache: cache.NewTyped[catalog.TitleDetail](store),
		cfg:         cfg,
		logger:      logger,
	}
}

func SearchCacheKey(title string) string {
	return "search:" + textutil.NormalizeQuery(title)
}

func DetailCacheKey(slug string) string {
	return "anime:" + normalizeSlug(slug)
}

// normalizeSlug gives one spelling per title so the cache key, the upstream
// URL and TitleDetail.Slug agree.
func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func (s *Service) SearchURL(title string) string {
	path := strings.ReplaceAll(s.cfg.SearchPath, "{query}", url.QueryEscape(strings.TrimSpace(title)))
	return s.cfg.BaseURL + path
}

func (s *Service) DetailURL(slug string) string {
	path := strings.ReplaceAll(s.cfg.DetailPath, "{slug}", url.PathEscape(normalizeSlug(slug)))
	return s.cfg.BaseURL + path
}

// Search returns the search results for title and whether they came from
// the cache.
func (s *Service) Search(ctx context.Context, title string) (catalog.SearchResult, bool, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Search")
	defer span.End()

	key := SearchCacheKey(title)
	span.SetAttributes(attribute.String("cache.key", key))

	if cached, ok := s.cachedSearch(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, true, nil
	}

	value, err := s.collapse(ctx, key, func(ctx context.Context) (any, error) {
		page, err := s.fetchPage(ctx, s.SearchURL(title))
		if err != nil {
			return nil, err
		}
		entries, err := s.search.ExtractSearchResults(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("extract search results: %w", err)
		}
		found := catalog.NewSearchResult(entries)
		if err := s.searchCache.Set(ctx, key, found, s.cfg.SearchTTL); err != nil {
			s.logger.Warn("cache store failed", "cacheKey", key, "error", err)
		}
		return found, nil
	})
	if err != nil {
		return catalog.SearchResult{}, false, err
	}
	return value.(catalog.SearchResult), false, nil
}

// Anime returns the detail for slug. The full detail is cached once per slug
// and episodeFilter is applied to the cached copy.
func (s *Service) Anime(ctx context.Context, slug string, episodeFilter *int) (catalog.TitleDetail, bool, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Anime")
	defer span.End()

	slug = normalizeSlug(slug)
	key := DetailCacheKey(slug)
	span.SetAttributes(attribute.String("cache.key", key))

	if cached, ok := s.cachedDetail(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached.FilterEpisode(episodeFilter), true, nil
	}

	value, err := s.collapse(ctx, key, func(ctx context.Context) (any, error) {
		page, err := s.fetchPage(ctx, s.DetailURL(slug))
		if err != nil {
			return nil, err
		}
		extracted, err := s.detail.ExtractTitleDetail(ctx, page, slug, nil)
		if err != nil {
			return nil, fmt.Errorf("extract title detail: %w", err)
		}
		if err := s.detailCache.Set(ctx, key, extracted, s.cfg.DetailTTL); err != nil {
			s.logger.Warn("cache store failed", "cacheKey", key, "error", err)
		}
		return extracted, nil
	})
	if err != nil {
		return catalog.TitleDetail{}, false, err
	}
	return value.(catalog.TitleDetail).FilterEpisode(episodeFilter), false, nil
}

func (s *Service) cachedSearch(ctx context.Context, key string) (catalog.SearchResult, bool) {
	value, ok, err := s.searchCache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache lookup failed", "cacheKey", key, "error", err)
		return catalog.SearchResult{}, false
	}
	return value, ok
}

func (s *Service) cachedDetail(ctx context.Context, key string) (catalog.TitleDetail, bool) {
	value, ok, err := s.detailCache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache lookup failed", "cacheKey", key, "error", err)
		return catalog.TitleDetail{}, false
	}
	return value, ok
}

// collapse runs load once per key across concurrent callers. The shared load
// is detached from any single caller's cancellation; each caller still stops
// waiting when its own context ends.
func (s *Service) collapse(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return load(shared)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("collapsed concurrent upstream load", "cacheKey", key)
		}
		return res.Val, res.Err
	}
}

func (s *Service) fetchPage(ctx context.Context, rawURL string) (string, error) {
	res, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", &catalog.UpstreamStatusError{URL: rawURL, StatusCode: res.StatusCode}
	}
	return res.Text(), nil
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var statusErr *catalog.UpstreamStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
