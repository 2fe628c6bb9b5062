// Package tabs implements the ordered registry of open tabs.
//
// The registry is not safe for concurrent use; callers serialise access
// (see package workspace).
package tabs

import (
	"fmt"

	"github.com/starford/tabkeep/internal/apperr"
	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/observe"
)

// EvictFunc is invoked synchronously with the key of every removed tab,
// before the mutation that removed it returns.
type EvictFunc func(key string)

// Registry owns the open tabs, the active key and the ordering rules.
// Position 0 always holds the home tab, which can never be closed or moved.
type Registry struct {
	tabs   []models.Tab
	active string
	evict  EvictFunc
	events observe.Subject[[]Event]
}

// New creates a registry containing only the home tab, which is active.
func New(home models.Tab, evict EvictFunc) *Registry {
	home.Closable = false
	home.Order = 0
	return &Registry{
		tabs:   []models.Tab{home},
		active: home.Key,
		evict:  evict,
	}
}

// Subscribe registers fn to receive the events of every mutation.
func (r *Registry) Subscribe(fn func([]Event)) func() {
	return r.events.Subscribe(fn)
}

// Home returns the home tab.
func (r *Registry) Home() models.Tab {
	return r.tabs[0]
}

// Active returns the active key.
func (r *Registry) Active() string {
	return r.active
}

// ActiveTab returns the active tab.
func (r *Registry) ActiveTab() models.Tab {
	t, _ := r.Get(r.active)
	return t
}

// Tabs returns a copy of the ordered tab list.
func (r *Registry) Tabs() []models.Tab {
	out := make([]models.Tab, len(r.tabs))
	copy(out, r.tabs)
	return out
}

// Len returns the number of open tabs, home included.
func (r *Registry) Len() int {
	return len(r.tabs)
}

// Get returns the tab with the given key.
func (r *Registry) Get(key string) (models.Tab, bool) {
	if i := r.indexOf(key); i >= 0 {
		return r.tabs[i], true
	}
	return models.Tab{}, false
}

// Open activates the tab for key, creating it at the end of the list when
// it does not exist yet. An existing tab has its title and path refreshed.
func (r *Registry) Open(key, title, path string) error {
	if key == "" {
		return fmt.Errorf("tabs: open: empty key")
	}
	var evs []Event
	if i := r.indexOf(key); i >= 0 {
		t := &r.tabs[i]
		changed := false
		if title != "" && t.Title != title {
			t.Title = title
			changed = true
		}
		if path != "" && t.Path != path {
			t.Path = path
			changed = true
		}
		if changed {
			evs = append(evs, Event{Type: EventUpdated, Key: key})
		}
	} else {
		r.tabs = append(r.tabs, models.Tab{
			Key:      key,
			Title:    title,
			Path:     path,
			Closable: true,
			Order:    len(r.tabs),
		})
		evs = append(evs, Event{Type: EventOpened, Key: key})
	}
	if r.active != key {
		r.active = key
		evs = append(evs, Event{Type: EventActivated, Key: key})
	}
	r.emit(evs)
	return nil
}

// Activate makes key the active tab. An activation event is emitted even
// when key is already active so listeners can bring the displayed page and
// the router back onto it.
func (r *Registry) Activate(key string) error {
	if r.indexOf(key) < 0 {
		return fmt.Errorf("tabs: activate %q: %w", key, apperr.ErrTabNotFound)
	}
	r.active = key
	r.emit([]Event{{Type: EventActivated, Key: key}})
	return nil
}

// Close removes the tab for key. When it was active, activation moves to
// its left neighbour, else its right neighbour, else the home tab.
func (r *Registry) Close(key string) error {
	i := r.indexOf(key)
	if i < 0 {
		return fmt.Errorf("tabs: close %q: %w", key, apperr.ErrTabNotFound)
	}
	if !r.tabs[i].Closable {
		return fmt.Errorf("tabs: close %q: %w", key, apperr.ErrTabNotClosable)
	}

	wasActive := r.active == key
	r.tabs = append(r.tabs[:i], r.tabs[i+1:]...)
	r.renumber()
	r.evictKey(key)

	evs := []Event{{Type: EventClosed, Key: key}}
	if wasActive {
		next := r.tabs[0].Key
		switch {
		case i-1 >= 0:
			next = r.tabs[i-1].Key
		case i < len(r.tabs):
			next = r.tabs[i].Key
		}
		r.active = next
		evs = append(evs, Event{Type: EventActivated, Key: next})
	}
	r.emit(evs)
	return nil
}

// CloseOthers removes every closable tab except the active one.
func (r *Registry) CloseOthers() {
	r.closeWhere(func(t models.Tab) bool { return t.Key != r.active })
}

// CloseAll removes every closable tab and activates the home tab.
func (r *Registry) CloseAll() {
	r.closeWhere(func(models.Tab) bool { return true })
}

func (r *Registry) closeWhere(match func(models.Tab) bool) {
	kept := r.tabs[:0:0]
	var removed []string
	for _, t := range r.tabs {
		if t.Closable && match(t) {
			removed = append(removed, t.Key)
			continue
		}
		kept = append(kept, t)
	}
	r.tabs = kept
	r.renumber()

	evs := make([]Event, 0, len(removed)+1)
	for _, key := range removed {
		r.evictKey(key)
		evs = append(evs, Event{Type: EventClosed, Key: key})
	}
	if r.indexOf(r.active) < 0 {
		r.active = r.tabs[0].Key
		evs = append(evs, Event{Type: EventActivated, Key: r.active})
	}
	r.emit(evs)
}

// Reorder moves the tab at from to position to. Position 0 belongs to the
// home tab and is rejected as either source or destination.
func (r *Registry) Reorder(from, to int) error {
	n := len(r.tabs)
	if from <= 0 || to <= 0 || from >= n || to >= n {
		return fmt.Errorf("tabs: reorder %d -> %d of %d: %w", from, to, n, apperr.ErrInvalidReorder)
	}
	if from == to {
		return nil
	}
	t := r.tabs[from]
	r.tabs = append(r.tabs[:from], r.tabs[from+1:]...)
	r.tabs = append(r.tabs[:to], append([]models.Tab{t}, r.tabs[to:]...)...)
	r.renumber()
	r.emit([]Event{{Type: EventReordered, Key: t.Key}})
	return nil
}

// Restore replaces the current tabs with a previously persisted list. The
// home tab stays at position 0 regardless of where the saved list put it;
// duplicate keys and extra non-closable entries are dropped. No eviction
// runs for the replaced tabs: restore happens before any page is mounted.
func (r *Registry) Restore(saved []models.Tab, active string) {
	home := r.tabs[0]
	out := []models.Tab{home}
	seen := map[string]struct{}{home.Key: {}}
	for _, t := range saved {
		if t.Key == "" {
			continue
		}
		if _, dup := seen[t.Key]; dup {
			if t.Key == home.Key && t.Title != "" {
				out[0].Title = t.Title
			}
			continue
		}
		seen[t.Key] = struct{}{}
		t.Closable = true
		out = append(out, t)
	}
	r.tabs = out
	r.renumber()

	r.active = home.Key
	if r.indexOf(active) >= 0 {
		r.active = active
	}
	r.emit([]Event{{Type: EventRestored, Key: r.active}})
}

func (r *Registry) evictKey(key string) {
	if r.evict != nil {
		r.evict(key)
	}
}

func (r *Registry) emit(evs []Event) {
	if len(evs) == 0 {
		return
	}
	r.events.Notify(evs)
}

func (r *Registry) renumber() {
	for i := range r.tabs {
		r.tabs[i].Order = i
	}
}

func (r *Registry) indexOf(key string) int {
	for i, t := range r.tabs {
		if t.Key == key {
			return i
		}
	}
	return -1
}
