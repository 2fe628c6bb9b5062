package jobs

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/starford/tabkeep/internal/persist"
	"github.com/starford/tabkeep/internal/storage"
)

// DefaultPreviewRows is how many data rows a preview carries.
const DefaultPreviewRows = 20

// Import failures surfaced to users as task errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file has no rows")
	ErrInvalidHeader     = errors.New("invalid header row")
)

// Resolver maps an upload handle to an absolute file path.
type Resolver interface {
	Abs(path string) (string, error)
}

// LocalRunner parses CSV and XLSX uploads in-process and commits them by
// recording the import in the database.
type LocalRunner struct {
	uploads     Resolver
	imports     persist.ImportStore
	previewRows int
	now         func() time.Time
}

// NewLocalRunner creates a runner reading uploads through r.
func NewLocalRunner(r Resolver, imports persist.ImportStore, previewRows int) *LocalRunner {
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	return &LocalRunner{uploads: r, imports: imports, previewRows: previewRows, now: time.Now}
}

// Parse reads the whole file and returns its header and the first rows.
func (l *LocalRunner) Parse(ctx context.Context, f File) (Parsed, error) {
	rows, err := l.read(ctx, f.Handle)
	if err != nil {
		return Parsed{}, err
	}
	header, data := rows[0], rows[1:]
	preview := data
	if len(preview) > l.previewRows {
		preview = preview[:l.previewRows]
	}
	out := Parsed{
		Handle:    f.Handle,
		Columns:   header,
		Rows:      make([][]string, len(preview)),
		TotalRows: len(data),
	}
	for i, row := range preview {
		out.Rows[i] = pad(row, len(header))
	}
	return out, nil
}

// Validate checks the header row: every column named, no duplicates.
func (l *LocalRunner) Validate(ctx context.Context, handle string) error {
	rows, err := l.read(ctx, handle)
	if err != nil {
		return err
	}
	return validateHeader(rows[0])
}

// Commit validates the file again and records the import. Committing the
// same handle twice fails.
func (l *LocalRunner) Commit(ctx context.Context, handle string) error {
	rows, err := l.read(ctx, handle)
	if err != nil {
		return err
	}
	if err := validateHeader(rows[0]); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.imports.RecordImport(persist.ImportRecord{
		Handle:      handle,
		FileName:    storage.OriginalName(handle),
		Columns:     rows[0],
		RowCount:    len(rows) - 1,
		CommittedAt: l.now(),
	})
}

func (l *LocalRunner) read(ctx context.Context, handle string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.uploads.Abs(handle)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	rows = dropBlank(rows)
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	for i := range rows[0] {
		rows[0][i] = strings.TrimSpace(rows[0][i])
	}
	return rows, nil
}

// Formats reports whether the runner can read files with the extension of name.
func Formats(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func validateHeader(header []string) error {
	seen := make(map[string]int, len(header))
	for i, col := range header {
		if col == "" {
			return fmt.Errorf("%w: column %d has no name", ErrInvalidHeader, i+1)
		}
		key := strings.ToLower(col)
		if j, dup := seen[key]; dup {
			return fmt.Errorf("%w: column %q repeats column %d", ErrInvalidHeader, col, j+1)
		}
		seen[key] = i
	}
	return nil
}

func dropBlank(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func pad(row []string, n int) []string {
	out := make([]string, n)
	copy(out, row)
	return out
}
