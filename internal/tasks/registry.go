// Package tasks tracks background import jobs through their state machine,
// independently of which page is displayed.
package tasks

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tabkeep/internal/apperr"
	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/observe"
)

// DefaultRecentWindow is how long a completed task stays in the recently
// completed bucket, measured from its creation.
const DefaultRecentWindow = 30 * time.Second

// ChangeKind identifies a registry mutation.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind ChangeKind
	Task models.Task
}

// Payload carries the fields that accompany a transition.
type Payload struct {
	Progress string
	Error    string
	Handle   string
	Preview  *models.Preview
}

// Filter selects tasks by status. An empty filter matches everything.
type Filter struct {
	Statuses []models.TaskStatus
}

func (f Filter) match(t *models.Task) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

// Registry owns every task. It is safe for concurrent use: job callbacks
// report into it from any goroutine, and every task transitions
// independently of the others.
//
// Subscribers run after the state lock is released, so they may read the
// registry with Get or List. Deliveries are serialised in mutation order
// and a subscriber must not mutate the registry itself.
type Registry struct {
	// notifyMu is held across a mutation and the delivery of its changes.
	notifyMu sync.Mutex
	mu       sync.RWMutex
	tasks    map[string]*models.Task
	now      func() time.Time
	newID    func() string
	window   time.Duration
	changes  observe.Subject[Change]
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithRecentWindow sets the recently completed display window.
func WithRecentWindow(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.window = d
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tasks:  make(map[string]*models.Task),
		now:    time.Now,
		newID:  uuid.NewString,
		window: DefaultRecentWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers fn for change notifications.
func (r *Registry) Subscribe(fn func(Change)) func() {
	return r.changes.Subscribe(fn)
}

// update runs fn under the write lock and delivers the changes it returns
// once the lock is released.
func (r *Registry) update(fn func() ([]Change, error)) error {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	changes, err := fn()
	r.mu.Unlock()

	for _, c := range changes {
		r.changes.Notify(c)
	}
	return err
}

// Create registers a new task in the parsing state and returns its id.
func (r *Registry) Create(fileName string, target *models.BoundTarget) string {
	var id string
	_ = r.update(func() ([]Change, error) {
		id = r.create(fileName, target)
		return []Change{{Kind: ChangeCreated, Task: *r.tasks[id]}}, nil
	})
	return id
}

func (r *Registry) create(fileName string, target *models.BoundTarget) string {
	id := r.newID()
	for _, taken := r.tasks[id]; taken; _, taken = r.tasks[id] {
		id = r.newID()
	}
	now := r.now()
	t := &models.Task{
		ID:        id,
		Status:    models.TaskParsing,
		FileName:  fileName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if target != nil {
		bt := *target
		t.BoundTarget = &bt
	}
	r.tasks[id] = t
	return id
}

// Transition moves task id to status to. Illegal moves are rejected with
// ErrInvalidTransition and leave the task unchanged.
func (r *Registry) Transition(id string, to models.TaskStatus, p Payload) error {
	return r.update(func() ([]Change, error) {
		return r.transition(id, to, p)
	})
}

func (r *Registry) transition(id string, to models.TaskStatus, p Payload) ([]Change, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("tasks: transition %s: %w", id, apperr.ErrNotFound)
	}
	if g := CanTransition(t.Status, to); !g.Allowed {
		return nil, fmt.Errorf("tasks: transition %s: %s: %w", id, g.Reason, apperr.ErrInvalidTransition)
	}

	t.Status = to
	t.UpdatedAt = r.now()
	switch {
	case to == models.TaskError:
		t.Progress = ""
		t.Error = p.Error
		if t.Error == "" {
			t.Error = "import failed"
		}
	case to == models.TaskCompleted:
		t.Progress = ""
		t.Error = ""
	default:
		t.Progress = p.Progress
		t.Error = ""
	}
	if p.Handle != "" {
		t.Handle = p.Handle
	}
	if p.Preview != nil {
		t.Preview = p.Preview
	}
	return []Change{{Kind: ChangeUpdated, Task: *t}}, nil
}

// Progress updates the progress message of an in-flight task.
func (r *Registry) Progress(id, msg string) error {
	return r.update(func() ([]Change, error) {
		t, ok := r.tasks[id]
		if !ok {
			return nil, fmt.Errorf("tasks: progress %s: %w", id, apperr.ErrNotFound)
		}
		if !t.Status.InFlight() {
			return nil, fmt.Errorf("tasks: progress %s: task is %s: %w", id, t.Status, apperr.ErrInvalidTransition)
		}
		if t.Progress == msg {
			return nil, nil
		}
		t.Progress = msg
		t.UpdatedAt = r.now()
		return []Change{{Kind: ChangeUpdated, Task: *t}}, nil
	})
}

// Get returns a copy of the task with the given id.
func (r *Registry) Get(id string) (models.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return *t, true
}

// List returns the tasks matching f, newest first.
func (r *Registry) List(f Filter) []models.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if f.match(t) {
			out = append(out, *t)
		}
	}
	sortNewestFirst(out)
	return out
}

// Remove permanently deletes a task.
func (r *Registry) Remove(id string) error {
	return r.update(func() ([]Change, error) {
		t, ok := r.tasks[id]
		if !ok {
			return nil, fmt.Errorf("tasks: remove %s: %w", id, apperr.ErrNotFound)
		}
		delete(r.tasks, id)
		return []Change{{Kind: ChangeRemoved, Task: *t}}, nil
	})
}

// Restore loads previously persisted tasks. Tasks that were parsing or
// importing lost their job with the previous process and are moved to the
// error state. It returns the ids of the interrupted tasks.
func (r *Registry) Restore(saved []models.Task) []string {
	var interrupted []string
	_ = r.update(func() ([]Change, error) {
		var changes []Change
		interrupted, changes = r.restore(saved)
		return changes, nil
	})
	return interrupted
}

func (r *Registry) restore(saved []models.Task) ([]string, []Change) {
	var (
		interrupted []string
		changes     []Change
	)
	for _, s := range saved {
		if s.ID == "" {
			continue
		}
		t := s
		lost := t.Status.InFlight()
		if lost {
			t.Status = models.TaskError
			t.Progress = ""
			t.Error = "interrupted by restart"
			t.UpdatedAt = r.now()
			interrupted = append(interrupted, t.ID)
		}
		switch {
		case t.Status == models.TaskError && t.Error == "":
			t.Error = "import failed"
		case t.Status != models.TaskError:
			t.Error = ""
		}
		r.tasks[t.ID] = &t
		if lost {
			changes = append(changes, Change{Kind: ChangeUpdated, Task: t})
		}
	}
	return interrupted, changes
}

// Len returns the number of tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func sortNewestFirst(ts []models.Task) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID > ts[j].ID
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})
}
