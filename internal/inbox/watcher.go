// Package inbox turns files dropped into a directory into import tasks.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tabkeep/internal/checksum"
	"github.com/starford/tabkeep/internal/jobs"
	"github.com/starford/tabkeep/internal/storage"
)

// DefaultSettle is how long a file must stay quiet before it is picked up.
const DefaultSettle = 300 * time.Millisecond

// Submitter starts an import job for a stored upload.
type Submitter interface {
	Submit(f jobs.File, opts jobs.SubmitOptions) string
}

// Watcher moves supported files from the inbox directory into the upload
// area and submits them. Each file is taken once its writes have settled.
type Watcher struct {
	dir        string
	uploads    storage.Provider
	submitter  Submitter
	autoCommit bool
	settle     time.Duration
	logger     *slog.Logger

	// seen maps inbox paths to the checksum last submitted for them.
	seen map[string]string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithAutoCommit commits inbox files without waiting for confirmation.
func WithAutoCommit(on bool) Option {
	return func(w *Watcher) { w.autoCommit = on }
}

// WithSettle overrides the quiet period.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// New creates a watcher for dir. The directory is created when missing.
func New(dir string, uploads storage.Provider, submitter Submitter, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("inbox: create dir: %w", err)
	}
	w := &Watcher{
		dir:       abs,
		uploads:   uploads,
		submitter: submitter,
		settle:    DefaultSettle,
		logger:    logger,
		seen:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches the inbox until ctx is cancelled. Files already present at
// startup are picked up as well.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("inbox: started", slog.String("dir", w.dir))

	pending := make(map[string]struct{})
	if entries, err := os.ReadDir(w.dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && accepts(e.Name()) {
				pending[filepath.Join(w.dir, e.Name())] = struct{}{}
			}
		}
	}

	timer := time.NewTimer(w.settle)
	defer timer.Stop()
	if len(pending) == 0 {
		timer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox: stopped")
			return nil

		case <-timer.C:
			for path := range pending {
				w.take(path)
			}
			clear(pending)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !accepts(filepath.Base(ev.Name)) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.settle)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// take submits the file at path unless this exact content was submitted
// before, then removes it from the inbox.
func (w *Watcher) take(path string) {
	sum, err := checksum.File(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("inbox: checksum failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}
	if w.seen[path] == sum {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		w.logger.Warn("inbox: open failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	stored, err := w.uploads.Save(filepath.Base(path), f)
	f.Close()
	if err != nil {
		w.logger.Warn("inbox: store failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	w.seen[path] = sum

	id := w.submitter.Submit(jobs.File{Name: stored.Name, Handle: stored.Path}, jobs.SubmitOptions{AutoCommit: w.autoCommit})
	w.logger.Info("inbox: submitted", slog.String("file", stored.Name), slog.String("task", id))

	if err := os.Remove(path); err != nil {
		w.logger.Warn("inbox: remove failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	delete(w.seen, path)
}

func accepts(name string) bool {
	return !strings.HasPrefix(name, ".") && jobs.Formats(name)
}
