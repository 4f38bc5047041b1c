package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/gabriel/tatakai-scraper/migrations"
)

// ApplyMigrations runs the .sql files of migrationsPath in name order, each
// at most once. An empty path uses the schema embedded in the binary.
func ApplyMigrations(db *sql.DB, migrationsPath string) error {
	var migrationsFS fs.FS = migrations.FS
	if strings.TrimSpace(migrationsPath) != "" {
		migrationsFS = os.DirFS(migrationsPath)
	}
	return ApplyMigrationsFS(db, migrationsFS)
}

func ApplyMigrationsFS(db *sql.DB, migrationsFS fs.FS) error {
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	migrationFiles := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	for _, fileName := range migrationFiles {
		applied, err := migrationApplied(db, fileName)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, fileName)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", fileName, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", fileName, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, fileName); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", fileName, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", fileName, err)
		}
	}

	return nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func migrationApplied(db *sql.DB, version string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", path.Base(version), err)
	}
	return count > 0, nil
}
