package jsandy

import (
	"context"
	"fmt"
	"sync"
)

// EventEmitter is a schema-gated, multi-handler event bus for a single
// payload type T, keyed by event name: spec.md §4.2's `on(event, handler)` /
// `off(event, handler?)` / `handleEvent(event, data)`. It backs Server
// Socket's incoming dispatch; the client package's ClientSocket keeps its
// own handler map instead.
type EventEmitter[T any] struct {
	mu       sync.RWMutex
	schema   *Schema
	handlers map[string]map[int]func(ctx context.Context, payload T) error
	order    map[string][]int
	nextID   int
}

// NewEventEmitter creates an emitter. schema may be nil to skip validation.
func NewEventEmitter[T any](schema *Schema) *EventEmitter[T] {
	return &EventEmitter[T]{
		schema:   schema,
		handlers: make(map[string]map[int]func(ctx context.Context, payload T) error),
		order:    make(map[string][]int),
	}
}

// On registers handler for event and returns an unsubscribe function.
// Handlers for one event run in registration order but are isolated from
// one another: one handler's error does not prevent the rest from running.
// A handler deregistered mid-dispatch still runs for the in-flight event,
// since HandleEvent snapshots the handler list before invoking any of them.
func (e *EventEmitter[T]) On(event string, handler func(ctx context.Context, payload T) error) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[int]func(ctx context.Context, payload T) error)
	}
	e.handlers[event][id] = handler
	e.order[event] = append(e.order[event], id)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.handlers[event], id)
		e.mu.Unlock()
	}
}

// Off removes every handler currently registered for event.
func (e *EventEmitter[T]) Off(event string) {
	e.mu.Lock()
	delete(e.handlers, event)
	delete(e.order, event)
	e.mu.Unlock()
}

// HandleEvent validates payload against the incoming schema (if any) and
// runs every handler registered for event, recovering panics as handler
// errors. If any handlers fail, their failures are aggregated into a single
// *Error of kind KindHandlerFailure; callers that don't care about partial
// failure can ignore a non-nil return so long as they've logged it
// upstream. The schema check runs even for events with no registered
// handlers; past it, such events are a silent no-op.
func (e *EventEmitter[T]) HandleEvent(ctx context.Context, event string, payload T) error {
	if e.schema != nil {
		hints := map[string]tag{}
		doc, err := encodeAny(payload, "", hints)
		if err != nil {
			return err
		}
		if err := e.schema.Validate(doc); err != nil {
			return err
		}
	}

	e.mu.RLock()
	byID := e.handlers[event]
	ordered := make([]func(ctx context.Context, payload T) error, 0, len(byID))
	for _, id := range e.order[event] {
		if h, ok := byID[id]; ok {
			ordered = append(ordered, h)
		}
	}
	e.mu.RUnlock()

	var failures []string
	for _, h := range ordered {
		if err := runHandler(ctx, h, payload); err != nil {
			failures = append(failures, err.Error())
		}
	}

	if len(failures) == 0 {
		return nil
	}

	appErr := NewError(KindHandlerFailure, fmt.Sprintf("%d of %d event handlers failed", len(failures), len(ordered)))
	for _, f := range failures {
		appErr = appErr.WithDetail(KindHandlerFailure, f)
	}
	return appErr
}

func runHandler[T any](ctx context.Context, h func(ctx context.Context, payload T) error, payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}

// HandlerCount reports how many handlers are currently registered across
// every event name, used by tests and diagnostics.
func (e *EventEmitter[T]) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, byID := range e.handlers {
		n += len(byID)
	}
	return n
}
