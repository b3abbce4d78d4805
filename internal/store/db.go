// Package store provides SQLite-backed persistence for executions, steps,
// and the audit/communication trail. It handles both the global store
// (~/.local/share/maestro/maestro.db) and project-local stores
// (.maestro/state.db).
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database connection with engine-specific operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// GlobalDBPath returns the path to the global maestro database.
func GlobalDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "maestro", "maestro.db")
}

// ProjectDBPath returns the path to a project-local database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".maestro", "state.db")
}

// Open opens an SQLite database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// OpenGlobal opens the global maestro database.
func OpenGlobal() (*DB, error) {
	return Open(GlobalDBPath())
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Executions},
		{2, migrationV2Steps},
		{3, migrationV3AuditRecords},
		{4, migrationV4CommRecords},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1Executions = `
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	template_id TEXT,
	mode TEXT NOT NULL,
	context TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
`

const migrationV2Steps = `
CREATE TABLE IF NOT EXISTS steps (
	execution_id TEXT NOT NULL,
	id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	task_text TEXT,
	depends_on TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	started_at DATETIME,
	completed_at DATETIME,
	output TEXT,
	error TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	step_order INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (execution_id, id)
);

CREATE INDEX IF NOT EXISTS idx_steps_status ON steps(status);
`

const migrationV3AuditRecords = `
CREATE TABLE IF NOT EXISTS audit_records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	execution_id TEXT NOT NULL,
	step_id TEXT,
	agent_id TEXT,
	action TEXT NOT NULL,
	status TEXT,
	message TEXT,
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_execution_id ON audit_records(execution_id);
`

const migrationV4CommRecords = `
CREATE TABLE IF NOT EXISTS communication_records (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	from_agent TEXT NOT NULL,
	to_agent TEXT NOT NULL,
	message TEXT,
	response TEXT,
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comm_execution_id ON communication_records(execution_id);
`

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

// Transaction runs the given function within a transaction.
func (db *DB) Transaction(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}
