package tasks

import (
	"time"

	"github.com/starford/tabkeep/internal/models"
)

// Summary groups tasks the way the floating status surface shows them.
// A task appears in at most one bucket; completed tasks older than the
// window appear in none but remain in the registry.
type Summary struct {
	Processing        []models.Task `json:"processing"`
	RecentlyCompleted []models.Task `json:"recently_completed"`
	NeedsAttention    []models.Task `json:"needs_attention"`
}

// Total returns the number of tasks across all buckets.
func (s Summary) Total() int {
	return len(s.Processing) + len(s.RecentlyCompleted) + len(s.NeedsAttention)
}

// Summarize buckets the registry contents as of now.
func (r *Registry) Summarize(now time.Time) Summary {
	all := r.List(Filter{})
	s := Summary{
		Processing:        []models.Task{},
		RecentlyCompleted: []models.Task{},
		NeedsAttention:    []models.Task{},
	}
	for _, t := range all {
		switch t.Status {
		case models.TaskParsing, models.TaskImporting:
			s.Processing = append(s.Processing, t)
		case models.TaskPreview, models.TaskError:
			s.NeedsAttention = append(s.NeedsAttention, t)
		case models.TaskCompleted:
			if now.Sub(t.CreatedAt) < r.window {
				s.RecentlyCompleted = append(s.RecentlyCompleted, t)
			}
		}
	}
	return s
}

// RecentWindow returns the configured recently completed window.
func (r *Registry) RecentWindow() time.Duration {
	return r.window
}
