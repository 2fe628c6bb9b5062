// Package navigation keeps the router, the tab registry and the retention
// cache consistent with one another.
//
// The controller is not safe for concurrent use; callers serialise access.
package navigation

import (
	"log/slog"

	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/retention"
	"github.com/starford/tabkeep/internal/routes"
	"github.com/starford/tabkeep/internal/tabs"
)

// Layer identifies which view tree is displayed.
type Layer string

const (
	LayerRetained  Layer = "retained"
	LayerTransient Layer = "transient"
)

// Navigator accepts programmatic navigation requests.
type Navigator interface {
	NavigateTo(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// NavigateTo calls f(path).
func (f NavigatorFunc) NavigateTo(path string) { f(path) }

// Controller reacts to route changes and tab activations.
type Controller struct {
	routes    *routes.Table
	tabs      *tabs.Registry
	cache     *retention.Cache
	navigator Navigator
	logger    *slog.Logger

	location string
	layer    Layer
	unsub    func()
}

// New wires a controller to its collaborators and subscribes it to tab
// events. navigator may be nil when nothing needs to follow the active tab.
func New(table *routes.Table, reg *tabs.Registry, cache *retention.Cache, navigator Navigator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		routes:    table,
		tabs:      reg,
		cache:     cache,
		navigator: navigator,
		logger:    logger,
		location:  table.Home().Path,
		layer:     LayerTransient,
	}
	c.unsub = reg.Subscribe(c.onTabEvents)
	return c
}

// Close detaches the controller from the tab registry.
func (c *Controller) Close() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}

// Location returns the last known router location.
func (c *Controller) Location() string {
	return c.location
}

// Layer returns the layer currently displayed.
func (c *Controller) Layer() Layer {
	return c.layer
}

// OnRouteChange handles a navigation reported by the router. Keep-alive
// routes open (or activate) their tab and show their retained page; any
// other location is rendered transiently without touching the cache. It
// returns the resolved route, if any.
func (c *Controller) OnRouteChange(location string) (models.Route, bool) {
	c.location = location
	route, ok := c.routes.Match(location)
	if !ok || !c.cache.IsKeepAlive(route.Key) {
		if ok && route.Home {
			c.showHome(route)
			return route, true
		}
		c.layer = LayerTransient
		c.cache.Deactivate()
		return route, ok
	}

	if err := c.tabs.Open(route.Key, route.Title, location); err != nil {
		c.logger.Warn("navigation: open tab failed", slog.String("route", route.Key), slog.String("error", err.Error()))
		return route, true
	}
	c.show(route.Key)
	return route, true
}

// showHome activates the home tab for a home route that is not retained.
func (c *Controller) showHome(route models.Route) {
	if err := c.tabs.Open(route.Key, route.Title, route.Path); err != nil {
		c.logger.Warn("navigation: activate home failed", slog.String("error", err.Error()))
	}
	c.layer = LayerTransient
	c.cache.Deactivate()
}

func (c *Controller) show(key string) {
	c.cache.EnsureMounted(key)
	c.cache.SetActive(key)
	c.layer = LayerRetained
}

// onTabEvents shows the tab named by an activation or a restore. A
// restored workspace comes back on its saved active tab.
func (c *Controller) onTabEvents(evs []tabs.Event) {
	for _, ev := range evs {
		if ev.Type != tabs.EventActivated && ev.Type != tabs.EventRestored {
			continue
		}
		tab, ok := c.tabs.Get(ev.Key)
		if !ok {
			continue
		}
		if c.cache.IsKeepAlive(ev.Key) {
			c.show(ev.Key)
		} else {
			c.layer = LayerTransient
			c.cache.Deactivate()
		}
		c.follow(tab.Path)
	}
}

// follow makes the router reflect the active tab unless it already does.
func (c *Controller) follow(path string) {
	if path == "" || path == c.location {
		return
	}
	c.location = path
	if c.navigator != nil {
		c.navigator.NavigateTo(path)
	}
}
