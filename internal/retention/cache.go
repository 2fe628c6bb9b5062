// Package retention keeps the live instance of keep-alive pages across tab
// switches. An instance is mounted once, shown or hidden on navigation and
// unmounted exactly once when its tab closes.
//
// The cache is not safe for concurrent use; callers serialise access.
package retention

import (
	"log/slog"
	"sort"
	"time"

	"github.com/starford/tabkeep/internal/models"
)

// Renderable is the minimal lifecycle a retained page implements.
type Renderable interface {
	Mount()
	SetVisible(visible bool)
	Unmount()
}

// Factory builds the view instance for a route key.
type Factory func(routeKey string) Renderable

type entry struct {
	routeKey  string
	active    bool
	createdAt time.Time
	view      Renderable
}

// Cache maps route keys to retained view instances.
type Cache struct {
	factories map[string]Factory
	entries   map[string]*entry
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache. factories holds one entry per keep-alive route key;
// routes without a factory are never retained.
func New(factories map[string]Factory, opts ...Option) *Cache {
	c := &Cache{
		factories: make(map[string]Factory, len(factories)),
		entries:   make(map[string]*entry),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for k, f := range factories {
		c.factories[k] = f
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsKeepAlive reports whether routeKey is retained by this cache.
func (c *Cache) IsKeepAlive(routeKey string) bool {
	_, ok := c.factories[routeKey]
	return ok
}

// EnsureMounted creates and mounts the instance for a keep-alive route if it
// does not exist yet. The new entry starts hidden. It reports whether an
// instance was created.
func (c *Cache) EnsureMounted(routeKey string) bool {
	f, ok := c.factories[routeKey]
	if !ok {
		return false
	}
	if _, exists := c.entries[routeKey]; exists {
		return false
	}
	view := f(routeKey)
	view.Mount()
	view.SetVisible(false)
	c.entries[routeKey] = &entry{routeKey: routeKey, createdAt: c.now(), view: view}
	c.logger.Debug("retention: mounted", slog.String("route", routeKey))
	return true
}

// SetActive shows the entry for routeKey and hides every other entry. Keys
// without an entry are ignored.
func (c *Cache) SetActive(routeKey string) {
	target, ok := c.entries[routeKey]
	if !ok {
		return
	}
	for _, e := range c.entries {
		if e != target {
			c.setVisible(e, false)
		}
	}
	c.setVisible(target, true)
}

// Deactivate hides every entry, used while a transient page is displayed.
func (c *Cache) Deactivate() {
	for _, e := range c.entries {
		c.setVisible(e, false)
	}
}

// Evict removes the entry for routeKey and unmounts its instance. Evicting
// a key that has no entry is a no-op, so an instance is torn down at most
// once.
func (c *Cache) Evict(routeKey string) bool {
	e, ok := c.entries[routeKey]
	if !ok {
		return false
	}
	delete(c.entries, routeKey)
	e.view.Unmount()
	c.logger.Debug("retention: evicted", slog.String("route", routeKey))
	return true
}

// Lookup returns the retained instance for routeKey.
func (c *Cache) Lookup(routeKey string) (Renderable, bool) {
	e, ok := c.entries[routeKey]
	if !ok {
		return nil, false
	}
	return e.view, true
}

// Len returns the number of retained instances.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Entries returns the retained entries ordered by creation time.
func (c *Cache) Entries() []models.PageEntry {
	out := make([]models.PageEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, models.PageEntry{RouteKey: e.routeKey, Active: e.active, CreatedAt: e.createdAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RouteKey < out[j].RouteKey
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (c *Cache) setVisible(e *entry, visible bool) {
	if e.active == visible {
		return
	}
	e.active = visible
	e.view.SetVisible(visible)
}
