package tabs

import (
	"errors"
	"reflect"
	"testing"

	"github.com/starford/tabkeep/internal/apperr"
	"github.com/starford/tabkeep/internal/models"
)

var home = models.Tab{Key: "home", Title: "Home", Path: "/"}

type recorder struct {
	evicted []string
	events  [][]Event
}

func newTestRegistry(t *testing.T, keys ...string) (*Registry, *recorder) {
	t.Helper()
	rec := &recorder{}
	r := New(home, func(key string) { rec.evicted = append(rec.evicted, key) })
	for _, k := range keys {
		if err := r.Open(k, k, "/"+k); err != nil {
			t.Fatalf("open %s: %v", k, err)
		}
	}
	r.Subscribe(func(evs []Event) { rec.events = append(rec.events, evs) })
	return r, rec
}

func keysOf(r *Registry) []string {
	var out []string
	for _, t := range r.Tabs() {
		out = append(out, t.Key)
	}
	return out
}

func TestOpenIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	for i := 0; i < 5; i++ {
		if err := r.Open("orders", "Orders", "/orders"); err != nil {
			t.Fatal(err)
		}
	}
	if got := keysOf(r); !reflect.DeepEqual(got, []string{"home", "orders"}) {
		t.Fatalf("tabs = %v", got)
	}
	if r.Active() != "orders" {
		t.Errorf("active = %q, want orders", r.Active())
	}
}

func TestOpenExistingUpdatesTitleAndActivates(t *testing.T) {
	r, rec := newTestRegistry(t, "a", "b")
	if err := r.Open("a", "Alpha", "/a?x=1"); err != nil {
		t.Fatal(err)
	}
	tab, _ := r.Get("a")
	if tab.Title != "Alpha" || tab.Path != "/a?x=1" {
		t.Errorf("tab = %+v", tab)
	}
	want := []Event{{EventUpdated, "a"}, {EventActivated, "a"}}
	if !reflect.DeepEqual(rec.events[0], want) {
		t.Errorf("events = %v, want %v", rec.events[0], want)
	}
}

func TestOpenNewAppendsAtEnd(t *testing.T) {
	r, rec := newTestRegistry(t, "a")
	_ = r.Activate("home")
	_ = r.Open("b", "B", "/b")
	if got := keysOf(r); !reflect.DeepEqual(got, []string{"home", "a", "b"}) {
		t.Fatalf("tabs = %v", got)
	}
	last := rec.events[len(rec.events)-1]
	want := []Event{{EventOpened, "b"}, {EventActivated, "b"}}
	if !reflect.DeepEqual(last, want) {
		t.Errorf("events = %v, want %v", last, want)
	}
	b, _ := r.Get("b")
	if !b.Closable || b.Order != 2 {
		t.Errorf("b = %+v", b)
	}
}

func TestActivateUnknownIsRejected(t *testing.T) {
	r, rec := newTestRegistry(t, "a")
	err := r.Activate("nope")
	if !errors.Is(err, apperr.ErrTabNotFound) || !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if r.Active() != "a" {
		t.Errorf("active changed to %q", r.Active())
	}
	if len(rec.events) != 0 {
		t.Errorf("unexpected events %v", rec.events)
	}
}

func TestCloseActiveMovesLeft(t *testing.T) {
	r, rec := newTestRegistry(t, "b", "c")
	_ = r.Activate("b")
	if err := r.Close("b"); err != nil {
		t.Fatal(err)
	}
	if r.Active() != "home" {
		t.Errorf("active = %q, want home", r.Active())
	}

	r2, _ := newTestRegistry(t, "b", "c")
	if err := r2.Close("c"); err != nil {
		t.Fatal(err)
	}
	if r2.Active() != "b" {
		t.Errorf("active = %q, want b", r2.Active())
	}
	if !reflect.DeepEqual(rec.evicted, []string{"b"}) {
		t.Errorf("evicted = %v", rec.evicted)
	}
}

func TestCloseInactiveKeepsActive(t *testing.T) {
	r, rec := newTestRegistry(t, "a", "b", "c")
	_ = r.Close("a")
	if r.Active() != "c" {
		t.Errorf("active = %q, want c", r.Active())
	}
	want := []Event{{EventClosed, "a"}}
	if !reflect.DeepEqual(rec.events[0], want) {
		t.Errorf("events = %v", rec.events[0])
	}
	for i, tab := range r.Tabs() {
		if tab.Order != i {
			t.Errorf("tab %s order = %d, want %d", tab.Key, tab.Order, i)
		}
	}
}

func TestCloseEvictsBeforeReturning(t *testing.T) {
	var seenWhileEvicting []string
	var r *Registry
	r = New(home, func(key string) {
		if _, ok := r.Get(key); ok {
			t.Errorf("tab %s still present during eviction", key)
		}
		seenWhileEvicting = append(seenWhileEvicting, key)
	})
	_ = r.Open("a", "A", "/a")
	_ = r.Close("a")
	if !reflect.DeepEqual(seenWhileEvicting, []string{"a"}) {
		t.Errorf("evicted = %v", seenWhileEvicting)
	}
}

func TestCloseHomeAndUnknown(t *testing.T) {
	r, rec := newTestRegistry(t, "a")
	if err := r.Close("home"); !errors.Is(err, apperr.ErrTabNotClosable) {
		t.Errorf("close home err = %v", err)
	}
	if err := r.Close("zzz"); !errors.Is(err, apperr.ErrTabNotFound) {
		t.Errorf("close unknown err = %v", err)
	}
	if r.Len() != 2 || len(rec.evicted) != 0 || len(rec.events) != 0 {
		t.Errorf("state changed: len=%d evicted=%v events=%v", r.Len(), rec.evicted, rec.events)
	}
}

func TestCloseOthers(t *testing.T) {
	r, rec := newTestRegistry(t, "a", "b", "c")
	_ = r.Activate("b")
	rec.events = nil
	r.CloseOthers()
	if got := keysOf(r); !reflect.DeepEqual(got, []string{"home", "b"}) {
		t.Fatalf("tabs = %v", got)
	}
	if r.Active() != "b" {
		t.Errorf("active = %q", r.Active())
	}
	if !reflect.DeepEqual(rec.evicted, []string{"a", "c"}) {
		t.Errorf("evicted = %v", rec.evicted)
	}
	if HasType(rec.events[0], EventActivated) {
		t.Errorf("close others should not re-activate: %v", rec.events[0])
	}
}

func TestCloseAll(t *testing.T) {
	r, rec := newTestRegistry(t, "a", "b")
	r.CloseAll()
	if got := keysOf(r); !reflect.DeepEqual(got, []string{"home"}) {
		t.Fatalf("tabs = %v", got)
	}
	if r.Active() != "home" {
		t.Errorf("active = %q", r.Active())
	}
	want := []Event{{EventClosed, "a"}, {EventClosed, "b"}, {EventActivated, "home"}}
	if !reflect.DeepEqual(rec.events[0], want) {
		t.Errorf("events = %v, want %v", rec.events[0], want)
	}

	rec.events = nil
	r.CloseAll()
	if len(rec.events) != 0 {
		t.Errorf("close all on empty registry emitted %v", rec.events)
	}
}

func TestReorder(t *testing.T) {
	r, _ := newTestRegistry(t, "a", "b", "c")
	if err := r.Reorder(3, 1); err != nil {
		t.Fatal(err)
	}
	if got := keysOf(r); !reflect.DeepEqual(got, []string{"home", "c", "a", "b"}) {
		t.Fatalf("tabs = %v", got)
	}
	if err := r.Reorder(1, 3); err != nil {
		t.Fatal(err)
	}
	if got := keysOf(r); !reflect.DeepEqual(got, []string{"home", "a", "b", "c"}) {
		t.Fatalf("tabs = %v", got)
	}
	for i, tab := range r.Tabs() {
		if tab.Order != i {
			t.Errorf("order of %s = %d", tab.Key, tab.Order)
		}
	}
}

func TestReorderRejectsHomeAndOutOfBounds(t *testing.T) {
	r, rec := newTestRegistry(t, "a", "b")
	before := r.Tabs()
	cases := [][2]int{{0, 1}, {0, 2}, {1, 0}, {2, 0}, {0, 0}, {1, 3}, {-1, 1}, {5, 1}}
	for _, c := range cases {
		if err := r.Reorder(c[0], c[1]); !errors.Is(err, apperr.ErrInvalidReorder) {
			t.Errorf("reorder(%d,%d) err = %v", c[0], c[1], err)
		}
	}
	if !reflect.DeepEqual(before, r.Tabs()) {
		t.Errorf("tabs changed: %v", r.Tabs())
	}
	if len(rec.events) != 0 {
		t.Errorf("events emitted: %v", rec.events)
	}
}

func TestRestore(t *testing.T) {
	r, rec := newTestRegistry(t)
	r.Restore([]models.Tab{
		{Key: "b", Title: "B", Path: "/b"},
		{Key: "home", Title: "Start", Path: "/"},
		{Key: "a", Title: "A", Path: "/a", Closable: false},
		{Key: "b", Title: "B again"},
		{Key: ""},
	}, "a")
	if got := keysOf(r); !reflect.DeepEqual(got, []string{"home", "b", "a"}) {
		t.Fatalf("tabs = %v", got)
	}
	if r.Active() != "a" {
		t.Errorf("active = %q", r.Active())
	}
	if r.Home().Title != "Start" || r.Home().Closable {
		t.Errorf("home = %+v", r.Home())
	}
	a, _ := r.Get("a")
	if !a.Closable {
		t.Errorf("restored tab should be closable")
	}
	if len(rec.evicted) != 0 {
		t.Errorf("restore evicted %v", rec.evicted)
	}

	r.Restore(nil, "gone")
	if r.Active() != "home" {
		t.Errorf("active after restore with unknown key = %q", r.Active())
	}
}
