// Package scheduler runs the periodic cleanup of expired cache entries and
// rate-limit windows.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const DefaultSweepInterval = 5 * time.Minute

type cacheSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type windowSweeper interface {
	Sweep(now time.Time) int
}

type Janitor struct {
	cache    cacheSweeper
	windows  windowSweeper
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	stopCh   chan struct{}
}

type JanitorConfig struct {
	Interval time.Duration
	Now      func() time.Time
}

// NewJanitor sweeps cache and windows; either may be nil.
func NewJanitor(cache cacheSweeper, windows windowSweeper, cfg JanitorConfig, logger *slog.Logger) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		cache:    cache,
		windows:  windows,
		interval: cfg.Interval,
		now:      cfg.Now,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("janitor started", "interval", j.interval.String())
	ticker := time.NewTicker(j.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				j.logger.Info("janitor stopped")
				close(j.stopCh)
				return
			case <-ticker.C:
				if _, err := j.RunOnce(ctx); err != nil {
					j.logger.Warn("janitor cycle failed", "error", err)
				}
			}
		}
	}()
}

func (j *Janitor) StopWait(timeout time.Duration) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	select {
	case <-j.stopCh:
	case <-time.After(timeout):
	}
}

type SweepResult struct {
	CacheEntries int
	RateWindows  int
}

func (j *Janitor) RunOnce(ctx context.Context) (SweepResult, error) {
	now := j.now()
	var result SweepResult
	var errs []error

	if j.cache != nil {
		removed, err := j.cache.Sweep(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep cache: %w", err))
		}
		result.CacheEntries = removed
	}
	if j.windows != nil {
		result.RateWindows = j.windows.Sweep(now)
	}

	if result.CacheEntries > 0 || result.RateWindows > 0 {
		j.logger.Debug("janitor swept expired state",
			"cacheEntries", result.CacheEntries,
			"rateWindows", result.RateWindows,
		)
	}
	return result, errors.Join(errs...)
}
