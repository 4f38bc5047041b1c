// Package cache stores extracted pages for a bounded time. Stores are
// process-wide and shared by concurrent requests; entries expire lazily on
// read and may additionally be swept in the background.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidTTL = errors.New("cache: ttl must be positive")

// Store is the capability the pipeline depends on, so the backing storage
// (memory, sqlite) stays swappable.
type Store interface {
	// Get reports a miss both for absent and for expired keys.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set always overwrites any existing entry for key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Sweep removes every entry expired at now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type Entry struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether now is past the entry's expiry.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
