package cache_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gabriel/tatakai-scraper/internal/cache"
	"github.com/gabriel/tatakai-scraper/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *fakeClock) cache.Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(_ *testing.T, clock *fakeClock) cache.Store {
			return cache.NewMemory(cache.WithClock(clock.Now))
		},
		"sqlite": func(t *testing.T, clock *fakeClock) cache.Store {
			t.Helper()
			db, err := database.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			require.NoError(t, database.ApplyMigrations(db, ""))
			return cache.NewSQLite(db, clock.Now)
		},
	}
}

func TestStores(t *testing.T) {
	t.Parallel()

	for name, newStore := range storeFactories() {
		name, newStore := name, newStore
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("get within ttl is idempotent", func(t *testing.T) {
				clock := newFakeClock()
				store := newStore(t, clock)
				ctx := context.Background()

				require.NoError(t, store.Set(ctx, "search:naruto", []byte(`{"totalFound":1}`), 10*time.Minute))

				first, ok, err := store.Get(ctx, "search:naruto")
				require.NoError(t, err)
				require.True(t, ok)

				clock.Advance(9 * time.Minute)
				second, ok, err := store.Get(ctx, "search:naruto")
				require.NoError(t, err)
				require.True(t, ok)

				assert.Equal(t, `{"totalFound":1}`, string(first))
				assert.Equal(t, first, second)
			})

			t.Run("expired entry is a miss and is evicted", func(t *testing.T) {
				clock := newFakeClock()
				store := newStore(t, clock)
				ctx := context.Background()

				require.NoError(t, store.Set(ctx, "anime:one-piece", []byte("old"), time.Minute))
				clock.Advance(time.Minute)
				_, ok, err := store.Get(ctx, "anime:one-piece")
				require.NoError(t, err)
				assert.True(t, ok, "entry is still valid exactly at expiresAt")

				clock.Advance(time.Nanosecond)
				_, ok, err = store.Get(ctx, "anime:one-piece")
				require.NoError(t, err)
				assert.False(t, ok)

				removed, err := store.Sweep(ctx, clock.Now().Add(time.Hour))
				require.NoError(t, err)
				assert.Zero(t, removed, "lazy eviction already removed the entry")

				require.NoError(t, store.Set(ctx, "anime:one-piece", []byte("new"), time.Minute))
				value, ok, err := store.Get(ctx, "anime:one-piece")
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, "new", string(value))
			})

			t.Run("set overwrites", func(t *testing.T) {
				clock := newFakeClock()
				store := newStore(t, clock)
				ctx := context.Background()

				require.NoError(t, store.Set(ctx, "k", []byte("a"), time.Minute))
				require.NoError(t, store.Set(ctx, "k", []byte("b"), time.Hour))
				clock.Advance(2 * time.Minute)

				value, ok, err := store.Get(ctx, "k")
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, "b", string(value))
			})

			t.Run("rejects non-positive ttl", func(t *testing.T) {
				store := newStore(t, newFakeClock())
				assert.ErrorIs(t, store.Set(context.Background(), "k", []byte("a"), 0), cache.ErrInvalidTTL)
			})

			t.Run("sweep and delete", func(t *testing.T) {
				clock := newFakeClock()
				store := newStore(t, clock)
				ctx := context.Background()

				require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Minute))
				require.NoError(t, store.Set(ctx, "long", []byte("2"), time.Hour))
				require.NoError(t, store.Set(ctx, "gone", []byte("3"), time.Hour))
				require.NoError(t, store.Delete(ctx, "gone"))

				removed, err := store.Sweep(ctx, clock.Now().Add(2*time.Minute))
				require.NoError(t, err)
				assert.Equal(t, 1, removed)

				_, ok, err := store.Get(ctx, "long")
				require.NoError(t, err)
				assert.True(t, ok)
				_, ok, err = store.Get(ctx, "gone")
				require.NoError(t, err)
				assert.False(t, ok)
			})
		})
	}
}

func TestMemoryReturnsCopyOfStoredValue(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory()
	value := []byte("abc")
	require.NoError(t, store.Set(context.Background(), "k", value, time.Minute))
	value[0] = 'z'

	got, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, store.Len())
}

func TestSQLiteCountExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	db, err := database.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.ApplyMigrations(db, ""))

	store := cache.NewSQLite(db, clock.Now)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Hour))

	count, err := store.CountExpired(ctx, clock.Now().Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, store.Ping(ctx))
}

type payload struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

func TestTypedRoundTripAndCorruptPayload(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory()
	typed := cache.NewTyped[payload](store)
	ctx := context.Background()

	_, ok, err := typed.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, typed.Set(ctx, "p", payload{Title: "Naruto", Count: 2}, time.Minute))
	got, ok, err := typed.Get(ctx, "p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload{Title: "Naruto", Count: 2}, got)

	require.NoError(t, store.Set(ctx, "bad", []byte("not json"), time.Minute))
	_, ok, err = typed.Get(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len(), "corrupt entry is dropped")
}
