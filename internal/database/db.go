package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// BusyTimeoutMillis is how long a cache writer waits on a locked database.
const BusyTimeoutMillis = 5000

// connectionPragmas run on every pooled connection. Request handlers write
// cache rows concurrently with the janitor's sweeps.
var connectionPragmas = []string{
	fmt.Sprintf("busy_timeout(%d)", BusyTimeoutMillis),
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// Open opens the sqlite file backing the cache, creating its directory.
func Open(sqlitePath string) (*sql.DB, error) {
	if strings.TrimSpace(sqlitePath) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite", cacheDSN(sqlitePath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", sqlitePath, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", sqlitePath, err)
	}
	return db, nil
}

func cacheDSN(sqlitePath string) string {
	params := make([]string, 0, len(connectionPragmas))
	for _, pragma := range connectionPragmas {
		params = append(params, "_pragma="+pragma)
	}
	return sqlitePath + "?" + strings.Join(params, "&")
}
