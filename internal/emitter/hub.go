// Package emitter implements the per-run notification hub: one handler per
// event type, last registration wins, handler panics never escape.
package emitter

import (
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/petrijr/settle/pkg/api"
)

// PanicHook is told about a recovered handler panic.
type PanicHook func(event api.EventType, recovered *panics.Recovered)

// Hub maps event types to a single handler each.
//
// Emit calls are serialized, so handlers never run concurrently with each
// other. A handler may call On or Release on its own hub.
type Hub[T, R any] struct {
	mu       sync.RWMutex
	handlers map[api.EventType]api.Handler[T, R]
	released bool

	emitMu  sync.Mutex
	onPanic PanicHook
}

// New creates an empty hub. onPanic may be nil.
func New[T, R any](onPanic PanicHook) *Hub[T, R] {
	return &Hub[T, R]{
		handlers: make(map[api.EventType]api.Handler[T, R]),
		onPanic:  onPanic,
	}
}

// On registers h for event, replacing any previous handler. A nil h removes
// the registration. On is a no-op once the hub is released.
func (h *Hub[T, R]) On(event api.EventType, handler api.Handler[T, R]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return
	}
	if handler == nil {
		delete(h.handlers, event)
		return
	}
	h.handlers[event] = handler
}

// Emit delivers ev to the handler registered for ev.Type. It reports
// whether a handler ran to completion: false means there was no handler,
// the hub was released, or the handler panicked.
func (h *Hub[T, R]) Emit(ev api.Event[T, R]) bool {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.RLock()
	handler, ok := h.handlers[ev.Type]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	var pc panics.Catcher
	pc.Try(func() { handler(ev) })
	if r := pc.Recovered(); r != nil {
		if h.onPanic != nil {
			h.onPanic(ev.Type, r)
		}
		return false
	}
	return true
}

// Release detaches every handler. Subsequent Emit and On calls do nothing.
func (h *Hub[T, R]) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.released = true
	clear(h.handlers)
}

// Released reports whether Release was called.
func (h *Hub[T, R]) Released() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.released
}
