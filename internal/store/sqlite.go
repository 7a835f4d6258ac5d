// ABOUTME: SQLite store for principals, credits, call records, and the mirror outbox.
// ABOUTME: Uses modernc.org/sqlite with automatic schema creation and WAL mode.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore backs every persistent concern of the gateway: the principal
// directory, the credit ledger, call records, and the mirror outbox.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a store at the given path. The schema is created if
// it doesn't exist; parent directories are created if needed. Pass ":memory:"
// for an ephemeral store in tests.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("sqlite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			principal_id TEXT PRIMARY KEY,
			role         TEXT NOT NULL,
			permissions  TEXT NOT NULL DEFAULT '',
			token_hash   TEXT NOT NULL DEFAULT '',
			disabled     INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,

			CHECK (role IN ('admin', 'operator', 'caller'))
		);

		CREATE TABLE IF NOT EXISTS credit_entries (
			entry_id     TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL,
			amount       INTEGER NOT NULL,
			reason       TEXT NOT NULL,
			created_at   TEXT NOT NULL,

			FOREIGN KEY (principal_id) REFERENCES principals(principal_id)
		);

		CREATE INDEX IF NOT EXISTS idx_credit_principal
			ON credit_entries(principal_id, created_at);

		CREATE TABLE IF NOT EXISTS calls (
			call_id          TEXT PRIMARY KEY,
			external_call_id TEXT,
			principal_id     TEXT NOT NULL,
			session_id       TEXT NOT NULL,
			destination      TEXT NOT NULL,
			status           TEXT NOT NULL,
			created_at       TEXT NOT NULL,
			ended_at         TEXT,

			CHECK (status IN ('placing', 'active', 'ended', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_calls_principal ON calls(principal_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_calls_status ON calls(status);

		CREATE TABLE IF NOT EXISTS mirror_outbox (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			kind       TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
