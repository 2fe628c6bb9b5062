package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/tabkeep/internal/apperr"
	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/tasks"
)

// SubmitOptions controls how a submitted file is processed.
type SubmitOptions struct {
	// AutoCommit skips the preview step and commits right after parsing.
	AutoCommit bool
	Target     *models.BoundTarget
}

// Pipeline drives tasks through the runner. Jobs run on a context owned by
// the pipeline; nothing but Shutdown cancels them.
type Pipeline struct {
	tasks  *tasks.Registry
	runner Runner
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	confirmMu sync.Mutex
	uploads   Deleter
}

// Deleter removes a stored upload by handle.
type Deleter interface {
	Delete(handle string) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithUploads makes Dismiss delete the upload of a task no job is using.
func WithUploads(d Deleter) Option {
	return func(p *Pipeline) { p.uploads = d }
}

// NewPipeline creates a pipeline reporting into reg.
func NewPipeline(reg *tasks.Registry, runner Runner, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		tasks:  reg,
		runner: runner,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit creates a task for f and starts parsing it. It returns the task id
// immediately.
func (p *Pipeline) Submit(f File, opts SubmitOptions) string {
	id := p.tasks.Create(f.Name, opts.Target)
	_ = p.tasks.Progress(id, "parsing "+f.Name)
	p.logger.Info("import submitted",
		slog.String("task", id),
		slog.String("file", f.Name),
		slog.Bool("auto_commit", opts.AutoCommit))

	p.spawn(func(ctx context.Context) {
		p.parse(ctx, id, f, opts.AutoCommit)
	})
	return id
}

// Confirm commits a task waiting in preview. Validation failures are
// reported through the task, not the returned error.
func (p *Pipeline) Confirm(id string) error {
	p.confirmMu.Lock()
	defer p.confirmMu.Unlock()

	t, ok := p.tasks.Get(id)
	if !ok {
		return fmt.Errorf("jobs: confirm %s: %w", id, apperr.ErrNotFound)
	}
	if t.Status != models.TaskPreview {
		return fmt.Errorf("jobs: confirm %s: task is %s: %w", id, t.Status, apperr.ErrInvalidTransition)
	}

	if v, ok := p.runner.(Validator); ok {
		if err := v.Validate(p.ctx, t.Handle); err != nil {
			p.fail(id, "validation failed", err)
			return nil
		}
	}
	if err := p.tasks.Transition(id, models.TaskImporting, tasks.Payload{Progress: importingMessage(t.Preview)}); err != nil {
		return err
	}
	p.spawn(func(ctx context.Context) {
		p.commit(ctx, id, t.Handle)
	})
	return nil
}

// Dismiss permanently removes a task record. A job still running for it
// finishes and its result is discarded; its upload is left in place.
func (p *Pipeline) Dismiss(id string) error {
	t, _ := p.tasks.Get(id)
	if err := p.tasks.Remove(id); err != nil {
		return err
	}
	if p.uploads == nil || t.Handle == "" || t.Status.InFlight() {
		return nil
	}
	if err := p.uploads.Delete(t.Handle); err != nil {
		p.logger.Warn("delete upload", slog.String("task", id), slog.String("error", err.Error()))
	}
	return nil
}

// Shutdown cancels running jobs and waits for them to return.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) spawn(fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(p.ctx)
	}()
}

func (p *Pipeline) parse(ctx context.Context, id string, f File, autoCommit bool) {
	parsed, err := p.runner.Parse(ctx, f)
	if err != nil {
		p.fail(id, "parse failed", err)
		return
	}
	preview := &models.Preview{
		Columns:   parsed.Columns,
		Rows:      parsed.Rows,
		TotalRows: parsed.TotalRows,
	}
	handle := parsed.Handle
	if handle == "" {
		handle = f.Handle
	}

	if !autoCommit {
		p.report(id, models.TaskPreview, tasks.Payload{Handle: handle, Preview: preview})
		return
	}
	if !p.report(id, models.TaskImporting, tasks.Payload{
		Progress: importingMessage(preview),
		Handle:   handle,
		Preview:  preview,
	}) {
		return
	}
	p.commit(ctx, id, handle)
}

func (p *Pipeline) commit(ctx context.Context, id, handle string) {
	if err := p.runner.Commit(ctx, handle); err != nil {
		p.fail(id, "import failed", err)
		return
	}
	if p.report(id, models.TaskCompleted, tasks.Payload{}) {
		p.logger.Info("import completed", slog.String("task", id))
	}
}

func (p *Pipeline) fail(id, stage string, err error) {
	msg := err.Error()
	if errors.Is(err, context.Canceled) {
		msg = "cancelled by shutdown"
	}
	p.logger.Warn(stage, slog.String("task", id), slog.String("error", err.Error()))
	p.report(id, models.TaskError, tasks.Payload{Error: stage + ": " + msg})
}

// report applies a transition and reports whether it took effect. A task
// dismissed while its job ran is not an error.
func (p *Pipeline) report(id string, to models.TaskStatus, payload tasks.Payload) bool {
	err := p.tasks.Transition(id, to, payload)
	switch {
	case err == nil:
		return true
	case errors.Is(err, apperr.ErrNotFound):
		p.logger.Debug("task dismissed before job finished", slog.String("task", id))
	default:
		p.logger.Error("task transition rejected", slog.String("task", id), slog.String("error", err.Error()))
	}
	return false
}

func importingMessage(pv *models.Preview) string {
	if pv == nil {
		return "importing"
	}
	return fmt.Sprintf("importing %d rows", pv.TotalRows)
}
