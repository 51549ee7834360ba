// Package db provides the SQLite connection and schema for the vultrsync audit ledger.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// One row per reconciled resource, append-only
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reconcile_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			kind TEXT NOT NULL,
			natural_key TEXT NOT NULL,
			action TEXT NOT NULL,
			changed INTEGER NOT NULL,
			dry_run INTEGER NOT NULL,
			diff TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_runs_ts ON reconcile_runs(timestamp);
		CREATE INDEX IF NOT EXISTS idx_runs_kind_key ON reconcile_runs(kind, natural_key, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create reconcile_runs table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
