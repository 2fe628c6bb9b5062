// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tabkeep/internal/api"
	"github.com/starford/tabkeep/internal/inbox"
	"github.com/starford/tabkeep/internal/mcpserver"
	"github.com/starford/tabkeep/internal/sse"
	"github.com/starford/tabkeep/internal/tasks"
	"github.com/starford/tabkeep/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// Run starts the HTTP server, the status feed and the inbox watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("uploads_path", cfg.Uploads.Path),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.Int("routes", len(cfg.Routes)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker; also carries navigation requests back to the SPA.
	broker := sse.NewBroker(sse.WithSummaryThrottle(time.Second))
	defer broker.Close()

	c, err := newCore(cfg, broker, logger)
	if err != nil {
		return err
	}

	unsubWorkspace := c.ws.Subscribe(func(st workspace.State) {
		broker.PublishWorkspace(st)
	})
	defer unsubWorkspace()
	unsubTasks := c.reg.Subscribe(func(ch tasks.Change) {
		broker.PublishTaskChange(string(ch.Kind), ch.Task)
	})
	defer unsubTasks()

	apiRouter := api.NewRouter(api.RouterConfig{
		Workspace:   api.NewWorkspaceHandler(c.ws),
		Tasks:       api.NewTaskHandler(c.reg, c.pipeline, c.uploads),
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Inbox watcher.
	if cfg.Inbox.Enabled {
		w, err := inbox.New(cfg.Inbox.Path, c.uploads, c.pipeline, logger,
			inbox.WithAutoCommit(cfg.Inbox.AutoCommit),
			inbox.WithSettle(cfg.Inbox.Settle))
		if err != nil {
			c.close(context.Background(), logger)
			return err
		}
		g.Go(func() error {
			return w.Run(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Close SSE streams first so Shutdown does not wait on them.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	c.close(shutdownCtx, logger)

	if err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the other group members once shutdown has begun.
var errShutdown = errors.New("shutdown requested")

// RunMCP serves the MCP tools on stdio. Logs go to stderr because stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)

	c, err := newCore(app.config, nil, logger)
	if err != nil {
		return err
	}
	srv := mcpserver.New(mcpserver.Deps{
		Workspace: c.ws,
		Tasks:     c.reg,
		Pipeline:  c.pipeline,
		Uploads:   c.uploads,
	}, app.version)

	logger.Info("MCP server starting on stdio")
	serveErr := srv.ServeStdio()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	c.close(shutdownCtx, logger)

	if serveErr != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", serveErr)
	}
	return nil
}
