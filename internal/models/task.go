package models

import "time"

// TaskStatus is the state of a background import task.
type TaskStatus string

const (
	TaskParsing   TaskStatus = "parsing"
	TaskPreview   TaskStatus = "preview"
	TaskImporting TaskStatus = "importing"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskError
}

// InFlight reports whether a job is currently working on the task.
func (s TaskStatus) InFlight() bool {
	return s == TaskParsing || s == TaskImporting
}

// BoundTarget references the business document an import is attached to.
type BoundTarget struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// Preview is the parse result shown to the user before an import is confirmed.
type Preview struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
}

// Task is a unit of background import work.
type Task struct {
	ID          string       `json:"id"`
	Status      TaskStatus   `json:"status"`
	FileName    string       `json:"file_name"`
	BoundTarget *BoundTarget `json:"bound_target,omitempty"`
	Progress    string       `json:"progress,omitempty"`
	Error       string       `json:"error,omitempty"`
	Preview     *Preview     `json:"preview,omitempty"`
	Handle      string       `json:"-"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
