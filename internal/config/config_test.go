package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"CACHE_TTL", "SEARCH_CACHE_TTL", "DETAIL_CACHE_TTL", "RATE_LIMIT_WINDOW_SECONDS", "FETCH_TIMEOUT_SECONDS", "FETCH_MAX_RETRIES", "REQUEST_TIMEOUT_SECONDS"} {
		t.Setenv(key, "")
	}
	t.Setenv("RATE_LIMIT_MAX", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SearchCacheTTL != 600*time.Second || cfg.DetailCacheTTL != 600*time.Second {
		t.Fatalf("unexpected cache ttls: %s %s", cfg.SearchCacheTTL, cfg.DetailCacheTTL)
	}
	if cfg.RateLimitMax != 20 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit: %d per %s", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if cfg.FetchTimeout != 30*time.Second || cfg.FetchMaxRetries != 3 {
		t.Fatalf("unexpected fetch settings: %s %d", cfg.FetchTimeout, cfg.FetchMaxRetries)
	}
	if cfg.RequestTimeout != 150*time.Second {
		t.Fatalf("unexpected request timeout: %s", cfg.RequestTimeout)
	}
	if cfg.CacheBackend != CacheBackendMemory {
		t.Fatalf("expected memory backend, got %s", cfg.CacheBackend)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("expected info level, got %s", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("SEARCH_CACHE_TTL", "")
	t.Setenv("DETAIL_CACHE_TTL", "900")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "nope")
	t.Setenv("CACHE_BACKEND", "SQLite")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SearchCacheTTL != 120*time.Second {
		t.Fatalf("expected search ttl to follow CACHE_TTL, got %s", cfg.SearchCacheTTL)
	}
	if cfg.DetailCacheTTL != 900*time.Second {
		t.Fatalf("expected detail ttl override, got %s", cfg.DetailCacheTTL)
	}
	if cfg.RateLimitMax != 5 {
		t.Fatalf("expected rate limit max 5, got %d", cfg.RateLimitMax)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Fatalf("expected invalid window to fall back to 60s, got %s", cfg.RateLimitWindow)
	}
	if cfg.CacheBackend != CacheBackendSQLite {
		t.Fatalf("expected sqlite backend, got %s", cfg.CacheBackend)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %s", cfg.LogLevel)
	}
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("LOG_LEVEL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected unknown cache backend to fail")
	}
}
