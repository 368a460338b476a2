// Package sqlite persists tier-ladder progress in a local SQLite file.
// It uses the pure-Go modernc driver, so no CGO toolchain is required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "tierbot.db"

// DB wraps the SQLite handle.
type DB struct {
	db   *sql.DB
	path string
}

// Open creates dir if needed, opens dir/tierbot.db and applies migrations.
// A missing database is the normal first-run case and yields an empty store.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	// WAL keeps readers off the writer's lock; busy_timeout absorbs the
	// short contention window of a flush.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection serializes flushes.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB, path: path}
	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close releases the handle.
func (db *DB) Close() error { return db.db.Close() }

// Ping checks the handle is usable.
func (db *DB) Ping(ctx context.Context) error { return db.db.PingContext(ctx) }

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS user_progress (
			user_id           TEXT PRIMARY KEY,
			activity_count    INTEGER NOT NULL DEFAULT 0 CHECK(activity_count >= 0),
			acknowledged_tier INTEGER NOT NULL DEFAULT -1 CHECK(acknowledged_tier >= -1),
			updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_tier ON user_progress(acknowledged_tier)`,
	}
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
