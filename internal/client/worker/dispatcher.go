package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

type EventType int

const (
	EventInstall EventType = iota
	EventActivate
	EventFetch
	EventSync
)

func (t EventType) String() string {
	switch t {
	case EventInstall:
		return "install"
	case EventActivate:
		return "activate"
	case EventFetch:
		return "fetch"
	case EventSync:
		return "sync"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// SyncTag is the tag of the sync event that drains the pending queue.
const SyncTag = "process-pending-requests"

// Event is one lifecycle, fetch or sync notification delivered to a handler.
type Event struct {
	Type EventType
	// Request is set for fetch events.
	Request *http.Request
	// Tag is set for sync events.
	Tag string

	mu       sync.Mutex
	response *http.Response
}

// RespondWith answers a fetch event. Only the first call has effect.
func (e *Event) RespondWith(resp *http.Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.response == nil {
		e.response = resp
	}
}

// Response returns the response set by RespondWith, or nil when the handler
// let the request fall through to the network.
func (e *Event) Response() *http.Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.response
}

type Handler func(ctx context.Context, e *Event) error

// Dispatcher routes events to at most one handler per event type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[EventType]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventType]Handler)}
}

// Handle registers h for t, replacing any previous handler.
func (d *Dispatcher) Handle(t EventType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

// Dispatch runs the handler for e.Type and waits for it to finish. An event
// without a handler is a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, e *Event) error {
	d.mu.RLock()
	h, ok := d.handlers[e.Type]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := h(ctx, e); err != nil {
		return fmt.Errorf("%s handler: %w", e.Type, err)
	}
	return nil
}
