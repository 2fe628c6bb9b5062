// Package jobs runs import files through parse and commit on background
// goroutines and reports every step into the task registry.
package jobs

import "context"

// File is an upload handed to a Runner.
type File struct {
	// Name is the user facing file name.
	Name string
	// Handle identifies the stored upload; the runner resolves it.
	Handle string
}

// Parsed is the successful outcome of Runner.Parse.
type Parsed struct {
	// Handle is kept on the task and passed back to Commit.
	Handle  string
	Columns []string
	Rows    [][]string
	// TotalRows counts data rows, header excluded.
	TotalRows int
}

// Runner is the backend that parses and commits import files.
type Runner interface {
	Parse(ctx context.Context, f File) (Parsed, error)
	Commit(ctx context.Context, handle string) error
}

// Validator is implemented by runners that check a parsed file before it
// is committed. A validation failure moves a preview task straight to error.
type Validator interface {
	Validate(ctx context.Context, handle string) error
}
