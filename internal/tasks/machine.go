package tasks

import (
	"fmt"

	"github.com/starford/tabkeep/internal/models"
)

// transitions lists the legal targets of every status. Terminal statuses
// have no entry.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskParsing:   {models.TaskPreview, models.TaskImporting, models.TaskError},
	models.TaskPreview:   {models.TaskImporting, models.TaskError},
	models.TaskImporting: {models.TaskCompleted, models.TaskError},
}

// GuardResult is the outcome of a transition check.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CanTransition evaluates whether a task in status from may move to to.
func CanTransition(from, to models.TaskStatus) GuardResult {
	for _, next := range transitions[from] {
		if next == to {
			return GuardResult{Allowed: true}
		}
	}
	if from.Terminal() {
		return GuardResult{Reason: fmt.Sprintf("task is %s and accepts no further transitions", from)}
	}
	return GuardResult{Reason: fmt.Sprintf("cannot move from %s to %s", from, to)}
}

// Targets returns the statuses reachable from s in one step.
func Targets(s models.TaskStatus) []models.TaskStatus {
	out := make([]models.TaskStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// ParseStatus validates a status name.
func ParseStatus(s string) (models.TaskStatus, error) {
	switch st := models.TaskStatus(s); st {
	case models.TaskParsing, models.TaskPreview, models.TaskImporting, models.TaskCompleted, models.TaskError:
		return st, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}
