// Package persist provides SQLite-backed storage for tab sessions, task
// records and committed imports.
package persist

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	session    TEXT PRIMARY KEY,
	active_key TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tabs (
	session  TEXT NOT NULL,
	key      TEXT NOT NULL,
	title    TEXT NOT NULL DEFAULT '',
	path     TEXT NOT NULL DEFAULT '',
	closable INTEGER NOT NULL DEFAULT 1,
	ord      INTEGER NOT NULL,
	PRIMARY KEY (session, key)
);

CREATE INDEX IF NOT EXISTS idx_tabs_session_ord ON tabs(session, ord);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	file_name    TEXT NOT NULL DEFAULT '',
	target       TEXT NOT NULL DEFAULT '',
	progress     TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	preview      TEXT NOT NULL DEFAULT '',
	handle       TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS imports (
	handle       TEXT PRIMARY KEY,
	file_name    TEXT NOT NULL DEFAULT '',
	columns      TEXT NOT NULL DEFAULT '[]',
	row_count    INTEGER NOT NULL DEFAULT 0,
	committed_at DATETIME NOT NULL
);
`

// DB wraps a sql.DB with tabkeep-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("persist: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("persist: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("persist: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
