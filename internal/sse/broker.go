// Package sse implements the Server-Sent Events feed that keeps the SPA in
// step with the workspace and the task registry.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Event types published on the feed.
const (
	TypeTabsChanged   = "tabs.changed"
	TypeRouteNavigate = "route.navigate"
	TypeTaskChanged   = "tasks.changed"
	TypeTasksSummary  = "tasks.summary"
)

const (
	defaultSummaryEvery = time.Second
	defaultHeartbeat    = 15 * time.Second
	defaultClientBuffer = 64

	// retryMillis is the reconnect delay suggested to EventSource clients.
	retryMillis = 3000
)

var heartbeatFrame = []byte(": ping\n\n")

// Event is one message on the feed. Data is sent as JSON.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type outbound struct {
	event Event
	// summary marks task changes, which may be followed by a summary hint.
	summary bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithSummaryThrottle bounds how often the tasks.summary hint is sent.
func WithSummaryThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.summaryEvery = d
		}
	}
}

// WithHeartbeat sets the interval of comment frames that keep idle
// connections open through proxies. Zero disables them.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// WithClientBuffer sets how many frames a slow client may lag behind
// before frames are dropped for it.
func WithClientBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// Broker fans events out to connected clients.
//
// One goroutine owns the client set, the frame sequence and the summary
// throttle; every public method talks to it over channels.
type Broker struct {
	summaryEvery time.Duration
	heartbeat    time.Duration
	buffer       int

	join   chan chan []byte
	leave  chan chan []byte
	events chan outbound
	counts chan chan int

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewBroker starts a broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		summaryEvery: defaultSummaryEvery,
		heartbeat:    defaultHeartbeat,
		buffer:       defaultClientBuffer,
		join:         make(chan chan []byte),
		leave:        make(chan chan []byte),
		events:       make(chan outbound, 256),
		counts:       make(chan chan int),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq         uint64
		lastSummary time.Time
		beat        <-chan time.Time
	)
	if b.heartbeat > 0 {
		ticker := time.NewTicker(b.heartbeat)
		defer ticker.Stop()
		beat = ticker.C
	}

	send := func(frame []byte) {
		for ch := range clients {
			select {
			case ch <- frame:
			default:
				// Slow client; it misses this frame rather than stalling the feed.
			}
		}
	}
	emit := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		send(frame(seq, ev.Type, payload))
	}

	for {
		select {
		case <-b.done:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case out := <-b.events:
			emit(out.event)
			if out.summary {
				if now := time.Now(); now.Sub(lastSummary) >= b.summaryEvery {
					lastSummary = now
					emit(Event{Type: TypeTasksSummary, Data: struct{}{}})
				}
			}

		case <-beat:
			send(heartbeatFrame)

		case resp := <-b.counts:
			resp <- len(clients)
		}
	}
}

func frame(id uint64, typ string, payload []byte) []byte {
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, typ, payload))
}

// Close stops the broker and closes every client channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	<-b.stopped
}

// Subscribe registers a client and returns the channel its frames arrive
// on. The channel is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, b.buffer)
	select {
	case b.join <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	select {
	case b.leave <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	select {
	case b.counts <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients. Events published after
// Close are dropped.
func (b *Broker) Publish(event Event) {
	b.enqueue(outbound{event: event})
}

// PublishTaskChange publishes a task change, followed by a tasks.summary
// hint unless one went out within the throttle window.
func (b *Broker) PublishTaskChange(kind string, task any) {
	b.enqueue(outbound{
		event: Event{Type: TypeTaskChanged, Data: map[string]any{
			"kind": kind,
			"task": task,
		}},
		summary: true,
	})
}

// PublishWorkspace publishes the current tab state.
func (b *Broker) PublishWorkspace(state any) {
	b.Publish(Event{Type: TypeTabsChanged, Data: state})
}

// NavigateTo asks connected clients to move the browser to path.
func (b *Broker) NavigateTo(path string) {
	b.Publish(Event{Type: TypeRouteNavigate, Data: map[string]string{"path": path}})
}

func (b *Broker) enqueue(o outbound) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.events <- o:
	case <-b.done:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
