package tabichan

import (
	"log/slog"
	"reflect"
	"sync"
)

// Event names emitted by the WebSocket client.
const (
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventError          = "error"
	EventAuthError      = "auth_error"
	EventMessage        = "message"
	EventQuestion       = "question"
	EventResult         = "result"
	EventComplete       = "complete"
	EventChatError      = "chat_error"
	EventUnknownMessage = "unknown_message"
)

// Handler is a callback for an emitted event. Events without a payload
// (connected, complete) pass nil.
type Handler func(payload any)

// emitter maps event names to ordered subscriber lists. Registration order
// is invocation order, duplicates are allowed and invoked once per
// registration.
type emitter struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[string][]Handler)}
}

// on appends h to the event's subscriber list, creating it if absent.
func (e *emitter) on(event string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], h)
}

// off removes all registrations of h for event. With no handler it clears
// every subscriber for the event. Unknown events and handlers are a no-op.
func (e *emitter) off(event string, h ...Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, ok := e.handlers[event]
	if !ok {
		return
	}
	if len(h) == 0 || h[0] == nil {
		e.handlers[event] = list[:0]
		return
	}

	target := reflect.ValueOf(h[0]).Pointer()
	kept := list[:0]
	for _, reg := range list {
		if reflect.ValueOf(reg).Pointer() != target {
			kept = append(kept, reg)
		}
	}
	e.handlers[event] = kept
}

// emit invokes every subscriber of event in registration order. A panicking
// handler is recovered and logged; it never prevents later handlers from
// running or escapes to the caller.
func (e *emitter) emit(event string, payload any) {
	e.mu.Lock()
	list := make([]Handler, len(e.handlers[event]))
	copy(list, e.handlers[event])
	e.mu.Unlock()

	for _, h := range list {
		invoke(event, h, payload)
	}
}

func invoke(event string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "event", event, "panic", r)
		}
	}()
	h(payload)
}
