// Package store provides the embedded SQLite storage layer for tracker
// state.
//
// The database runs in embedded mode using ncruces/go-sqlite3 with WAL for
// concurrent reads during writes. All state for a client lives in normalized
// tables (habits, habit_entries, todos, expenses, wishlist, pomodoro,
// ui_prefs) keyed by client_id, with a single logical clock per client in
// state_meta. Replacing a client's state is one transaction: delete
// everything, re-insert the new snapshot, advance the clock. A reader never
// observes a half-replaced entity set.
//
// The legacy app_state table (one serialized blob per client) is never
// created by this code; it is only read, once, when migrating a pre-
// normalization client.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with tracker-specific operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created; call InitSchema before first use.
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent; safe to call on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		client_id TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (client_id)
	);

	-- One logical clock per client. Advanced only by an accepted replace;
	-- the stored value is whatever clock the accepted write carried.
	CREATE TABLE IF NOT EXISTS state_meta (
		client_id TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (client_id),
		FOREIGN KEY (client_id) REFERENCES clients(client_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS habits (
		client_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (client_id, id),
		FOREIGN KEY (client_id) REFERENCES clients(client_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS habit_entries (
		client_id TEXT NOT NULL,
		habit_id TEXT NOT NULL,
		date_iso TEXT NOT NULL,
		value INTEGER NOT NULL,
		created_at_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (client_id, habit_id, date_iso),
		FOREIGN KEY (client_id, habit_id) REFERENCES habits(client_id, id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS todos (
		client_id TEXT NOT NULL,
		id TEXT NOT NULL,
		date_iso TEXT NOT NULL,
		text TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		done INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (client_id, id),
		FOREIGN KEY (client_id) REFERENCES clients(client_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS expenses (
		client_id TEXT NOT NULL,
		id TEXT NOT NULL,
		date_iso TEXT NOT NULL,
		amount REAL NOT NULL DEFAULT 0,
		what TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		score TEXT NOT NULL DEFAULT '',
		period TEXT NOT NULL DEFAULT 'once',
		position INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (client_id, id),
		FOREIGN KEY (client_id) REFERENCES clients(client_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS wishlist (
		client_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		price REAL,
		position INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (client_id, id),
		FOREIGN KEY (client_id) REFERENCES clients(client_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS pomodoro (
		client_id TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT 'focus',
		focus_min INTEGER NOT NULL DEFAULT 25,
		break_min INTEGER NOT NULL DEFAULT 5,
		long_min INTEGER NOT NULL DEFAULT 15,
		rem_focus_sec INTEGER NOT NULL DEFAULT 1500,
		rem_break_sec INTEGER NOT NULL DEFAULT 300,
		rem_long_sec INTEGER NOT NULL DEFAULT 900,
		remaining_sec INTEGER NOT NULL DEFAULT 1500,
		is_running INTEGER NOT NULL DEFAULT 0,
		last_tick_ms INTEGER NOT NULL DEFAULT 0,
		session INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (client_id),
		FOREIGN KEY (client_id) REFERENCES clients(client_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ui_prefs (
		client_id TEXT NOT NULL,
		selected_date TEXT,
		view_month INTEGER,
		view_year INTEGER,
		chart_mode TEXT NOT NULL DEFAULT 'week',
		wish_sort_mode TEXT NOT NULL DEFAULT 'date-desc',
		exp_filter_category TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (client_id),
		FOREIGN KEY (client_id) REFERENCES clients(client_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_entries_habit ON habit_entries(client_id, habit_id);
	CREATE INDEX IF NOT EXISTS idx_todos_client_date ON todos(client_id, date_iso);
	CREATE INDEX IF NOT EXISTS idx_expenses_client_date ON expenses(client_id, date_iso);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// EnsureClient guarantees the identifier names exactly one client row with a
// clock row, creating both if absent. Existing clock and entities are left
// untouched.
func (s *Store) EnsureClient(ctx context.Context, clientID string) error {
	if _, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO clients (client_id) VALUES (?)`, clientID); err != nil {
		return fmt.Errorf("failed to ensure client row: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO state_meta (client_id, updated_at_ms) VALUES (?, 0)`, clientID); err != nil {
		return fmt.Errorf("failed to ensure clock row: %w", err)
	}
	return nil
}

// Clock returns the client's stored logical clock in milliseconds.
// A client without a clock row (or with an unset clock) reads as 0.
func (s *Store) Clock(ctx context.Context, clientID string) (int64, error) {
	var ms int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT updated_at_ms FROM state_meta WHERE client_id = ?`, clientID).Scan(&ms)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read clock: %w", err)
	}
	return ms, nil
}

// LegacyBlob reads the pre-normalization single-blob state for a client, if
// the legacy app_state table exists and holds a row. ok is false when there
// is no legacy source for this client.
func (s *Store) LegacyBlob(ctx context.Context, clientID string) (blob []byte, updatedAtMs int64, ok bool, err error) {
	exists, err := s.hasTable(ctx, "app_state")
	if err != nil {
		return nil, 0, false, err
	}
	if !exists {
		return nil, 0, false, nil
	}

	var stateJSON string
	err = s.conn.QueryRowContext(ctx,
		`SELECT state_json, updated_at_ms FROM app_state WHERE client_id = ?`, clientID).
		Scan(&stateJSON, &updatedAtMs)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read legacy state: %w", err)
	}
	return []byte(stateJSON), updatedAtMs, true, nil
}

func (s *Store) hasTable(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check for table %s: %w", name, err)
	}
	return count > 0, nil
}
