package events

import (
	"context"
	"encoding/json"
)

// Handler processes events of a specific type.
type Handler interface {
	// Handle processes an event. Should not block.
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as event handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// FallbackFunc receives events dispatched with no registered handler.
type FallbackFunc func(ctx context.Context, typ Type, payload json.RawMessage)

// Subscription represents a registered handler.
type Subscription interface {
	// Unsubscribe removes the subscription. Safe to call more than once.
	Unsubscribe()
}

// subscription is the internal implementation of Subscription.
type subscription struct {
	id       string
	registry *Registry
	typ      Type
}

// Unsubscribe removes this subscription from the registry.
func (s *subscription) Unsubscribe() {
	s.registry.remove(s.typ, s.id)
}
