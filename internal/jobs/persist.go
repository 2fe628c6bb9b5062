package jobs

import (
	"fmt"
	"log/slog"

	"github.com/starford/tabkeep/internal/persist"
	"github.com/starford/tabkeep/internal/tasks"
)

// Track mirrors every registry change into store. Write failures are
// logged; the in-memory registry stays authoritative.
func Track(reg *tasks.Registry, store persist.TaskStore, logger *slog.Logger) func() {
	return reg.Subscribe(func(c tasks.Change) {
		var err error
		if c.Kind == tasks.ChangeRemoved {
			err = store.DeleteTask(c.Task.ID)
		} else {
			err = store.UpsertTask(c.Task)
		}
		if err != nil {
			logger.Error("persist task", slog.String("task", c.Task.ID), slog.String("error", err.Error()))
		}
	})
}

// Restore loads persisted tasks into reg. Call it before Track so restored
// records are not written back unchanged; interrupted tasks are stored again
// here with their new error state.
func Restore(reg *tasks.Registry, store persist.TaskStore, logger *slog.Logger) error {
	saved, err := store.ListTasks()
	if err != nil {
		return fmt.Errorf("jobs: restore tasks: %w", err)
	}
	interrupted := reg.Restore(saved)
	for _, id := range interrupted {
		t, ok := reg.Get(id)
		if !ok {
			continue
		}
		if err := store.UpsertTask(t); err != nil {
			return fmt.Errorf("jobs: restore tasks: %w", err)
		}
	}
	logger.Info("tasks restored", slog.Int("count", len(saved)), slog.Int("interrupted", len(interrupted)))
	return nil
}
