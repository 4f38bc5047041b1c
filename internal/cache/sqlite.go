package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ Store = (*SQLite)(nil)

// SQLite keeps entries in the cache_entries table so they survive restarts
// and can be shared by several processes on one host. Timestamps are stored
// as unix nanoseconds.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(db *sql.DB, now func() time.Time) *SQLite {
	if now == nil {
		now = time.Now
	}
	return &SQLite{db: db, now: now}
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data      []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select cache entry: %w", err)
	}

	if s.now().UnixNano() > expiresAt {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ? AND expires_at = ?`, key, expiresAt); err != nil {
			return nil, false, fmt.Errorf("evict cache entry: %w", err)
		}
		return nil, false, nil
	}

	return data, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, data, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, value, now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *SQLite) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep cache entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count swept cache entries: %w", err)
	}
	return int(removed), nil
}

// CountExpired reports how many rows a Sweep at now would remove.
func (s *SQLite) CountExpired(ctx context.Context, now time.Time) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM cache_entries WHERE expires_at < ?`, now.UnixNano()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count expired cache entries: %w", err)
	}
	return count, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
