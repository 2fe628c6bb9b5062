// Package routes holds the table of navigable pages and resolves paths
// against it.
package routes

import (
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/retention"
)

// Table is an immutable lookup of routes by key and path.
type Table struct {
	routes []models.Route
	byKey  map[string]int
	byPath map[string]int
	home   int
}

// New validates routes and builds a table. Exactly one route must be home,
// keys and paths must be unique, and every keep-alive route must name a
// view present in views.
func New(routes []models.Route, views map[string]retention.Factory) (*Table, error) {
	t := &Table{
		byKey:  make(map[string]int, len(routes)),
		byPath: make(map[string]int, len(routes)),
		home:   -1,
	}
	for i, r := range routes {
		r.Path = Normalize(r.Path)
		if r.KeepAlive && r.View == "" {
			r.View = retention.ViewState
		}
		if err := validation.ValidateStruct(&r,
			validation.Field(&r.Key, validation.Required),
			validation.Field(&r.Path, validation.Required),
			validation.Field(&r.Title, validation.Required),
		); err != nil {
			return nil, fmt.Errorf("routes: route %d: %w", i, err)
		}
		if _, dup := t.byKey[r.Key]; dup {
			return nil, fmt.Errorf("routes: duplicate key %q", r.Key)
		}
		if _, dup := t.byPath[r.Path]; dup {
			return nil, fmt.Errorf("routes: duplicate path %q", r.Path)
		}
		if r.KeepAlive {
			if _, ok := views[r.View]; !ok {
				return nil, fmt.Errorf("routes: route %q: unknown view %q", r.Key, r.View)
			}
		}
		if r.Home {
			if t.home >= 0 {
				return nil, fmt.Errorf("routes: more than one home route (%q, %q)", t.routes[t.home].Key, r.Key)
			}
			t.home = len(t.routes)
		}
		t.byKey[r.Key] = len(t.routes)
		t.byPath[r.Path] = len(t.routes)
		t.routes = append(t.routes, r)
	}
	if t.home < 0 {
		return nil, fmt.Errorf("routes: no home route")
	}
	return t, nil
}

// Home returns the home route.
func (t *Table) Home() models.Route {
	return t.routes[t.home]
}

// All returns the routes in configuration order.
func (t *Table) All() []models.Route {
	out := make([]models.Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// ByKey returns the route with the given key.
func (t *Table) ByKey(key string) (models.Route, bool) {
	i, ok := t.byKey[key]
	if !ok {
		return models.Route{}, false
	}
	return t.routes[i], true
}

// Match resolves a location (path plus optional query) to its route.
func (t *Table) Match(location string) (models.Route, bool) {
	i, ok := t.byPath[Normalize(location)]
	if !ok {
		return models.Route{}, false
	}
	return t.routes[i], true
}

// Factories returns the keep-alive route key to factory table used to
// construct the retention cache.
func (t *Table) Factories(views map[string]retention.Factory) map[string]retention.Factory {
	out := make(map[string]retention.Factory)
	for _, r := range t.routes {
		if r.KeepAlive {
			out[r.Key] = views[r.View]
		}
	}
	return out
}

// Normalize strips the query and fragment of a location and trims a
// trailing slash, so "/orders/?page=2" and "/orders" resolve alike.
func Normalize(location string) string {
	p := location
	if u, err := url.Parse(location); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
