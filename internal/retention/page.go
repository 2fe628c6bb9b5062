package retention

import (
	"encoding/json"
	"sync"
)

// ViewState is the name of the built-in page factory.
const ViewState = "state"

// Page is the built-in retained instance. It stores opaque client state
// (drafts, filters, scroll offsets) for as long as its tab stays open.
type Page struct {
	mu      sync.Mutex
	key     string
	state   json.RawMessage
	visible bool
	mounted bool
}

// NewPage is the Factory for ViewState.
func NewPage(routeKey string) Renderable {
	return &Page{key: routeKey}
}

func (p *Page) Mount() {
	p.mu.Lock()
	p.mounted = true
	p.mu.Unlock()
}

func (p *Page) SetVisible(visible bool) {
	p.mu.Lock()
	p.visible = visible
	p.mu.Unlock()
}

// Unmount drops the stored state.
func (p *Page) Unmount() {
	p.mu.Lock()
	p.mounted = false
	p.visible = false
	p.state = nil
	p.mu.Unlock()
}

// Key returns the route key the page was built for.
func (p *Page) Key() string { return p.key }

// Visible reports whether the page is the displayed one.
func (p *Page) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// State returns a copy of the stored state, or nil when none was saved.
func (p *Page) State() json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return nil
	}
	out := make(json.RawMessage, len(p.state))
	copy(out, p.state)
	return out
}

// SetState replaces the stored state. It returns false once the page has
// been unmounted.
func (p *Page) SetState(state json.RawMessage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.mounted {
		return false
	}
	p.state = append(json.RawMessage(nil), state...)
	return true
}

// BuiltinFactories returns the view name to factory table available to
// routes.
func BuiltinFactories() map[string]Factory {
	return map[string]Factory{
		ViewState: NewPage,
	}
}
