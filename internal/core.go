package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/tabkeep/internal/jobs"
	"github.com/starford/tabkeep/internal/navigation"
	"github.com/starford/tabkeep/internal/persist"
	"github.com/starford/tabkeep/internal/retention"
	"github.com/starford/tabkeep/internal/routes"
	"github.com/starford/tabkeep/internal/storage"
	"github.com/starford/tabkeep/internal/tasks"
	"github.com/starford/tabkeep/internal/workspace"
)

var errConfigRequired = errors.New("config is required")

// core is the headless workspace shared by the HTTP and MCP front ends.
type core struct {
	db       *persist.DB
	uploads  *storage.FS
	table    *routes.Table
	ws       *workspace.Workspace
	reg      *tasks.Registry
	pipeline *jobs.Pipeline

	untrack func()
}

// BuildRoutes validates the configured route table.
func BuildRoutes(cfg *Config) (*routes.Table, error) {
	table, err := routes.New(cfg.Routes, retention.BuiltinFactories())
	if err != nil {
		return nil, fmt.Errorf("init routes: %w", err)
	}
	return table, nil
}

func newCore(cfg *Config, navigator navigation.Navigator, logger *slog.Logger) (*core, error) {
	table, err := BuildRoutes(cfg)
	if err != nil {
		return nil, err
	}

	uploads, err := storage.NewFS(cfg.Uploads.Path)
	if err != nil {
		return nil, fmt.Errorf("init uploads: %w", err)
	}

	db, err := persist.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	ws, err := workspace.New(workspace.Config{
		Session:   cfg.Workspace.Session,
		Routes:    table,
		Store:     db,
		Navigator: navigator,
		Logger:    logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init workspace: %w", err)
	}

	reg := tasks.NewRegistry(tasks.WithRecentWindow(cfg.Tasks.RecentWindow))
	if err := jobs.Restore(reg, db, logger); err != nil {
		ws.Close()
		db.Close()
		return nil, err
	}

	c := &core{
		db:      db,
		uploads: uploads,
		table:   table,
		ws:      ws,
		reg:     reg,
		untrack: jobs.Track(reg, db, logger),
	}
	c.pipeline = jobs.NewPipeline(reg, jobs.NewLocalRunner(uploads, db, cfg.Tasks.PreviewRows), logger,
		jobs.WithUploads(uploads))
	return c, nil
}

// close stops running jobs, then releases the workspace and database.
func (c *core) close(ctx context.Context, logger *slog.Logger) {
	if err := c.pipeline.Shutdown(ctx); err != nil {
		logger.Error("job shutdown incomplete", slog.String("error", err.Error()))
	}
	c.untrack()
	c.ws.Close()
	if err := c.db.Close(); err != nil {
		logger.Error("database close error", slog.String("error", err.Error()))
	}
}
