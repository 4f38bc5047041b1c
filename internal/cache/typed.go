package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Typed stores values of one entry class as JSON in a Store.
type Typed[T any] struct {
	store Store
}

func NewTyped[T any](store Store) *Typed[T] {
	return &Typed[T]{store: store}
}

func (t *Typed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var value T
	raw, ok, err := t.store.Get(ctx, key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		// A stale or foreign payload is treated as a miss and dropped.
		_ = t.store.Delete(ctx, key)
		return value, false, nil
	}
	return value, true, nil
}

func (t *Typed[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return t.store.Set(ctx, key, raw, ttl)
}
