package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendSQLite = "sqlite"
)

type Config struct {
	Environment string
	AppName     string
	Port        string
	LogLevel    slog.Level
	Debug       bool

	UpstreamBaseURL          string
	UpstreamSearchPath       string
	UpstreamDetailPath       string
	UpstreamRPS              float64
	UpstreamCloudflareBypass bool
	FetchTimeout             time.Duration
	FetchMaxRetries          int
	// RequestTimeout bounds one API request, including every fetch retry.
	RequestTimeout time.Duration

	CacheBackend       string
	SQLitePath         string
	MigrationsPath     string
	SearchCacheTTL     time.Duration
	DetailCacheTTL     time.Duration
	CacheSweepInterval time.Duration

	RateLimitMax           int
	RateLimitWindow        time.Duration
	RateLimitUseRemoteAddr bool

	ServersFile string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cacheTTL := getEnvAsInt("CACHE_TTL", 600)
	if cacheTTL <= 0 {
		cacheTTL = 600
	}

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		AppName:     getEnv("APP_NAME", "tatakai-scraper"),
		Port:        getEnv("APP_PORT", "8080"),
		Debug:       getEnvAsBool("DEBUG", false),

		UpstreamBaseURL:          strings.TrimRight(getEnv("UPSTREAM_BASE_URL", "https://hindidubanime.example"), "/"),
		UpstreamSearchPath:       getEnv("UPSTREAM_SEARCH_PATH", "/?s={query}"),
		UpstreamDetailPath:       getEnv("UPSTREAM_DETAIL_PATH", "/series/{slug}/"),
		UpstreamRPS:              getEnvAsFloat("UPSTREAM_RPS", 0),
		UpstreamCloudflareBypass: getEnvAsBool("UPSTREAM_CLOUDFLARE_BYPASS", false),
		FetchTimeout:             seconds(getEnvAsInt("FETCH_TIMEOUT_SECONDS", 30), 30),
		FetchMaxRetries:          getEnvAsInt("FETCH_MAX_RETRIES", 3),
		RequestTimeout:           seconds(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 150), 150),

		CacheBackend:       strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendMemory)),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/cache.sqlite"),
		MigrationsPath:     getEnv("MIGRATIONS_PATH", ""),
		SearchCacheTTL:     seconds(getEnvAsInt("SEARCH_CACHE_TTL", cacheTTL), cacheTTL),
		DetailCacheTTL:     seconds(getEnvAsInt("DETAIL_CACHE_TTL", cacheTTL), cacheTTL),
		CacheSweepInterval: seconds(getEnvAsInt("CACHE_SWEEP_INTERVAL_SECONDS", 300), 300),

		RateLimitMax:           getEnvAsInt("RATE_LIMIT_MAX", 20),
		RateLimitWindow:        seconds(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60), 60),
		RateLimitUseRemoteAddr: getEnvAsBool("RATE_LIMIT_USE_REMOTE_ADDR", false),

		ServersFile: getEnv("SERVERS_FILE", ""),
	}

	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 20
	}
	if cfg.FetchMaxRetries < 0 {
		cfg.FetchMaxRetries = 3
	}
	if cfg.UpstreamRPS < 0 {
		cfg.UpstreamRPS = 0
	}

	switch cfg.CacheBackend {
	case CacheBackendMemory, CacheBackendSQLite:
	default:
		return Config{}, fmt.Errorf("invalid CACHE_BACKEND %q, expected memory|sqlite", cfg.CacheBackend)
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "INFO"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	return cfg, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q, expected DEBUG|INFO|WARN|ERROR", raw)
	}
}

func seconds(value int, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func getEnv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
