package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/tabkeep/internal/models"
)

// TabStore persists the ordered tab list of a session.
type TabStore interface {
	SaveTabs(session string, tabs []models.Tab, active string) error
	LoadTabs(session string) ([]models.Tab, string, error)
}

// TaskStore persists task records.
type TaskStore interface {
	UpsertTask(t models.Task) error
	DeleteTask(id string) error
	ListTasks() ([]models.Task, error)
}

// ImportStore records committed imports.
type ImportStore interface {
	RecordImport(rec ImportRecord) error
	GetImport(handle string) (*ImportRecord, error)
}

// Verify *DB satisfies the store interfaces at compile time.
var (
	_ TabStore    = (*DB)(nil)
	_ TaskStore   = (*DB)(nil)
	_ ImportStore = (*DB)(nil)
)

// SaveTabs replaces the stored tab list of session within a transaction.
func (db *DB) SaveTabs(session string, tabs []models.Tab, active string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("persist: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM tabs WHERE session = ?`, session); err != nil {
		return fmt.Errorf("persist: clear tabs: %w", err)
	}
	if len(tabs) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO tabs (session, key, title, path, closable, ord) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("persist: prepare tab insert: %w", err)
		}
		defer stmt.Close()
		for _, t := range tabs {
			if _, err := stmt.Exec(session, t.Key, t.Title, t.Path, t.Closable, t.Order); err != nil {
				return fmt.Errorf("persist: insert tab %q: %w", t.Key, err)
			}
		}
	}
	_, err = tx.Exec(`
		INSERT INTO sessions (session, active_key, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session) DO UPDATE SET
			active_key = excluded.active_key,
			updated_at = excluded.updated_at
	`, session, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persist: upsert session: %w", err)
	}
	return tx.Commit()
}

// LoadTabs returns the stored tabs of session in order, and its active key.
// An unknown session yields no tabs and no error.
func (db *DB) LoadTabs(session string) ([]models.Tab, string, error) {
	var active string
	err := db.conn.QueryRow(`SELECT active_key FROM sessions WHERE session = ?`, session).Scan(&active)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("persist: load session: %w", err)
	}

	rows, err := db.conn.Query(`SELECT key, title, path, closable, ord FROM tabs WHERE session = ? ORDER BY ord`, session)
	if err != nil {
		return nil, "", fmt.Errorf("persist: load tabs: %w", err)
	}
	defer rows.Close()

	var out []models.Tab
	for rows.Next() {
		var t models.Tab
		if err := rows.Scan(&t.Key, &t.Title, &t.Path, &t.Closable, &t.Order); err != nil {
			return nil, "", err
		}
		out = append(out, t)
	}
	return out, active, rows.Err()
}
