// Package storage persists transfer requests and the authoritative user status in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the relay's SQLite database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database file at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps the conditional status update race-free.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("module", "storage").Str("path", path).Msg("database ready")
	return &DB{db: db, path: path}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transfer_requests (
			id          TEXT PRIMARY KEY,
			sender_id   TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			kind        TEXT NOT NULL,
			name        TEXT NOT NULL,
			url         TEXT NOT NULL,
			size        INTEGER NOT NULL DEFAULT 0,
			mime        TEXT NOT NULL DEFAULT '',
			status      INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			resolved_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_transfer_receiver ON transfer_requests(receiver_id, status);
	`); err != nil {
		return fmt.Errorf("create transfer table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS presence (
			user_id    TEXT PRIMARY KEY,
			status     INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create presence table: %w", err)
	}
	return nil
}

func (d *DB) Path() string { return d.path }

func (d *DB) Close() error {
	return d.db.Close()
}
