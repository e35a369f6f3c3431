package unifi

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Handler receives every emitted event.
//
// Handlers run synchronously on the goroutine that received the frame, in
// registration order. A returned error stops delivery to later handlers and
// fails the streaming session that produced the event.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

type funcHandler struct {
	fn func(ctx context.Context, ev Event) error
}

func (h *funcHandler) HandleEvent(ctx context.Context, ev Event) error {
	return h.fn(ctx, ev)
}

// NewHandlerFunc adapts fn to a Handler. Each call returns a distinct
// handle; keep it to remove the handler later.
func NewHandlerFunc(fn func(ctx context.Context, ev Event) error) Handler {
	return &funcHandler{fn: fn}
}

// registry is the ordered set of handlers. Identity is interface equality.
type registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

// add appends h unless it is already registered.
func (r *registry) add(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if !reflect.ValueOf(h).Comparable() {
		return fmt.Errorf("%w: %T", ErrHandlerNotComparable, h)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.handlers {
		if existing == h {
			return nil
		}
	}
	r.handlers = append(r.handlers, h)
	return nil
}

// remove deletes the first registration of h.
func (r *registry) remove(h Handler) error {
	if h == nil || !reflect.ValueOf(h).Comparable() {
		return ErrHandlerNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.handlers {
		if existing == h {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return nil
		}
	}
	return ErrHandlerNotFound
}

// snapshot returns the handlers at this instant. Mutations during an emit
// take effect from the next emit.
func (r *registry) snapshot() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handler(nil), r.handlers...)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
