// Package workspace is the single store behind the tab bar: it serialises
// every navigation and tab action into one turn, persists the resulting tab
// list and notifies subscribers with the new state.
package workspace

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/tabkeep/internal/apperr"
	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/navigation"
	"github.com/starford/tabkeep/internal/observe"
	"github.com/starford/tabkeep/internal/persist"
	"github.com/starford/tabkeep/internal/retention"
	"github.com/starford/tabkeep/internal/routes"
	"github.com/starford/tabkeep/internal/tabs"
)

// ActionType names a workspace action.
type ActionType string

const (
	ActionNavigate    ActionType = "navigate"
	ActionActivate    ActionType = "activate"
	ActionClose       ActionType = "close"
	ActionCloseOthers ActionType = "close_others"
	ActionCloseAll    ActionType = "close_all"
	ActionReorder     ActionType = "reorder"
)

// Action is a user or router interaction dispatched to the workspace.
type Action struct {
	Type ActionType `json:"type"`
	Key  string     `json:"key,omitempty"`
	Path string     `json:"path,omitempty"`
	From int        `json:"from,omitempty"`
	To   int        `json:"to,omitempty"`
}

// State is a consistent snapshot of the workspace.
type State struct {
	Tabs      []models.Tab       `json:"tabs"`
	ActiveKey string             `json:"active_key"`
	Location  string             `json:"location"`
	Layer     navigation.Layer   `json:"layer"`
	Pages     []models.PageEntry `json:"pages"`
}

// Workspace owns the tab registry, retention cache and navigation
// controller of one session.
type Workspace struct {
	mu      sync.Mutex
	session string
	table   *routes.Table
	tabs    *tabs.Registry
	cache   *retention.Cache
	nav     *navigation.Controller
	store   persist.TabStore
	logger  *slog.Logger
	dirty   bool
	states  observe.Subject[State]
}

// Config collects the collaborators of a Workspace.
type Config struct {
	Session   string
	Routes    *routes.Table
	Views     map[string]retention.Factory
	Store     persist.TabStore // optional
	Navigator navigation.Navigator
	Logger    *slog.Logger
}

// New builds a workspace and seeds it from the tab store when one is
// configured. Saved tabs whose route is gone or no longer keep-alive are
// dropped.
func New(cfg Config) (*Workspace, error) {
	if cfg.Routes == nil {
		return nil, fmt.Errorf("workspace: route table is required")
	}
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	if cfg.Views == nil {
		cfg.Views = retention.BuiltinFactories()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Workspace{
		session: cfg.Session,
		table:   cfg.Routes,
		store:   cfg.Store,
		logger:  logger,
	}
	w.cache = retention.New(cfg.Routes.Factories(cfg.Views), retention.WithLogger(logger))
	home := cfg.Routes.Home()
	w.tabs = tabs.New(models.Tab{Key: home.Key, Title: home.Title, Path: home.Path}, func(key string) {
		w.cache.Evict(key)
	})
	w.nav = navigation.New(cfg.Routes, w.tabs, w.cache, cfg.Navigator, logger)
	w.tabs.Subscribe(func([]tabs.Event) { w.dirty = true })

	if w.store != nil {
		if err := w.restore(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Workspace) restore() error {
	saved, active, err := w.store.LoadTabs(w.session)
	if err != nil {
		return fmt.Errorf("workspace: load tabs: %w", err)
	}
	if len(saved) == 0 {
		return nil
	}
	kept := saved[:0:0]
	for _, t := range saved {
		r, ok := w.table.ByKey(t.Key)
		if !ok || !(r.KeepAlive || r.Home) {
			w.logger.Info("workspace: dropping saved tab", slog.String("key", t.Key))
			continue
		}
		kept = append(kept, t)
	}
	w.tabs.Restore(kept, active)
	w.dirty = false
	w.logger.Info("workspace: restored tabs",
		slog.String("session", w.session),
		slog.Int("count", w.tabs.Len()),
		slog.String("active", w.tabs.Active()))
	return nil
}

// Subscribe registers fn to receive the state after every action that
// changed the tab list. fn runs inside the turn and must not dispatch.
func (w *Workspace) Subscribe(fn func(State)) func() {
	return w.states.Subscribe(fn)
}

// State returns the current snapshot.
func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

// Dispatch applies a to the workspace in a single turn: registry mutation,
// eviction, navigation, persistence and notification all complete before
// it returns. Rejected actions leave the state unchanged.
func (w *Workspace) Dispatch(a Action) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.dirty = false
	var err error
	switch a.Type {
	case ActionNavigate:
		w.nav.OnRouteChange(a.Path)
	case ActionActivate:
		err = w.tabs.Activate(a.Key)
	case ActionClose:
		err = w.tabs.Close(a.Key)
	case ActionCloseOthers:
		w.tabs.CloseOthers()
	case ActionCloseAll:
		w.tabs.CloseAll()
	case ActionReorder:
		err = w.tabs.Reorder(a.From, a.To)
	default:
		err = fmt.Errorf("workspace: unknown action %q", a.Type)
	}
	if err != nil {
		w.logger.Debug("workspace: action rejected",
			slog.String("action", string(a.Type)),
			slog.String("key", a.Key),
			slog.String("error", err.Error()))
		return w.snapshot(), err
	}

	st := w.snapshot()
	if w.dirty {
		w.save(st)
		w.states.Notify(st)
	}
	return st, nil
}

// PageState returns the stored state of a retained page.
func (w *Workspace) PageState(key string) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, err := w.page(key)
	if err != nil {
		return nil, err
	}
	return p.State(), nil
}

// SetPageState replaces the stored state of a retained page. Only pages
// whose tab is open can hold state.
func (w *Workspace) SetPageState(key string, state json.RawMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, err := w.page(key)
	if err != nil {
		return err
	}
	if !p.SetState(state) {
		return fmt.Errorf("workspace: page %q: %w", key, apperr.ErrNotFound)
	}
	return nil
}

// Routes returns the route table.
func (w *Workspace) Routes() *routes.Table {
	return w.table
}

// Close detaches the navigation controller.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nav.Close()
}

type stateHolder interface {
	State() json.RawMessage
	SetState(json.RawMessage) bool
}

func (w *Workspace) page(key string) (stateHolder, error) {
	v, ok := w.cache.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("workspace: page %q: %w", key, apperr.ErrNotFound)
	}
	p, ok := v.(stateHolder)
	if !ok {
		return nil, fmt.Errorf("workspace: page %q holds no state: %w", key, apperr.ErrNotFound)
	}
	return p, nil
}

func (w *Workspace) save(st State) {
	w.dirty = false
	if w.store == nil {
		return
	}
	if err := w.store.SaveTabs(w.session, st.Tabs, st.ActiveKey); err != nil {
		w.logger.Error("workspace: save tabs failed",
			slog.String("session", w.session),
			slog.String("error", err.Error()))
	}
}

func (w *Workspace) snapshot() State {
	return State{
		Tabs:      w.tabs.Tabs(),
		ActiveKey: w.tabs.Active(),
		Location:  w.nav.Location(),
		Layer:     w.nav.Layer(),
		Pages:     w.cache.Entries(),
	}
}
