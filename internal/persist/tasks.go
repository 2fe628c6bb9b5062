package persist

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/tabkeep/internal/apperr"
	"github.com/starford/tabkeep/internal/models"
)

// ImportRecord describes a committed import.
type ImportRecord struct {
	Handle      string
	FileName    string
	Columns     []string
	RowCount    int
	CommittedAt time.Time
}

// UpsertTask inserts or replaces a task record.
func (db *DB) UpsertTask(t models.Task) error {
	var target, preview []byte
	if t.BoundTarget != nil {
		target, _ = json.Marshal(t.BoundTarget)
	}
	if t.Preview != nil {
		preview, _ = json.Marshal(t.Preview)
	}
	_, err := db.conn.Exec(`
		INSERT INTO tasks (id, status, file_name, target, progress, error, preview, handle, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status     = excluded.status,
			progress   = excluded.progress,
			error      = excluded.error,
			preview    = excluded.preview,
			handle     = excluded.handle,
			updated_at = excluded.updated_at
	`, t.ID, string(t.Status), t.FileName, string(target), t.Progress, t.Error, string(preview), t.Handle,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("persist: upsert task %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTask removes a task record. Deleting an unknown id is not an error.
func (db *DB) DeleteTask(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("persist: delete task %s: %w", id, err)
	}
	return nil
}

// ListTasks returns every stored task, oldest first.
func (db *DB) ListTasks() ([]models.Task, error) {
	rows, err := db.conn.Query(`
		SELECT id, status, file_name, target, progress, error, preview, handle, created_at, updated_at
		FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("persist: list tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		var (
			t               models.Task
			status          string
			target, preview string
		)
		if err := rows.Scan(&t.ID, &status, &t.FileName, &target, &t.Progress, &t.Error, &preview, &t.Handle,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Status = models.TaskStatus(status)
		if target != "" {
			var bt models.BoundTarget
			if json.Unmarshal([]byte(target), &bt) == nil {
				t.BoundTarget = &bt
			}
		}
		if preview != "" {
			var p models.Preview
			if json.Unmarshal([]byte(preview), &p) == nil {
				t.Preview = &p
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordImport stores a committed import. Committing the same handle twice
// fails with ErrAlreadyExists.
func (db *DB) RecordImport(rec ImportRecord) error {
	cols, _ := json.Marshal(rec.Columns)
	res, err := db.conn.Exec(`
		INSERT OR IGNORE INTO imports (handle, file_name, columns, row_count, committed_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Handle, rec.FileName, string(cols), rec.RowCount, rec.CommittedAt.UTC())
	if err != nil {
		return fmt.Errorf("persist: record import: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("persist: import %s: %w", rec.Handle, apperr.ErrAlreadyExists)
	}
	return nil
}

// GetImport returns the committed import for handle.
func (db *DB) GetImport(handle string) (*ImportRecord, error) {
	var (
		rec  ImportRecord
		cols string
	)
	err := db.conn.QueryRow(`SELECT handle, file_name, columns, row_count, committed_at FROM imports WHERE handle = ?`, handle).
		Scan(&rec.Handle, &rec.FileName, &cols, &rec.RowCount, &rec.CommittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist: get import: %w", err)
	}
	_ = json.Unmarshal([]byte(cols), &rec.Columns)
	return &rec, nil
}
