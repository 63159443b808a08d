package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry is the in-memory subscription registry: a typed multi-map from
// event type to an ordered set of handlers. Handler lifetime is tied to the
// registering consumer, not to the connection, so registrations survive
// reconnects.
//
// Go functions are not comparable, so idempotency is keyed by an explicit
// string chosen by the registering consumer: registering the same key for
// the same type twice is a no-op and returns the original subscription.
// That makes it safe for a consumer to subscribe on every remount without
// guarding against duplicate delivery.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Type][]*registration
	fallback FallbackFunc
	logger   *zap.Logger
}

type registration struct {
	id      string
	key     string
	handler Handler
}

// NewRegistry creates an empty subscription registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[Type][]*registration),
		logger:   logger.Named("events"),
	}
}

// On registers handler for typ under key. Re-registering an existing
// (typ, key) pair is a no-op that returns the original subscription.
// Handlers for a type are dispatched in registration order.
func (r *Registry) On(typ Type, key string, handler Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.handlers[typ] {
		if reg.key == key {
			r.logger.Debug("Handler already registered, skipping",
				zap.String("event_type", string(typ)),
				zap.String("key", key))
			return &subscription{id: reg.id, registry: r, typ: typ}
		}
	}

	reg := &registration{
		id:      uuid.New().String(),
		key:     key,
		handler: handler,
	}
	r.handlers[typ] = append(r.handlers[typ], reg)

	r.logger.Debug("Handler subscribed",
		zap.String("event_type", string(typ)),
		zap.String("key", key),
		zap.String("subscription_id", reg.id))

	return &subscription{id: reg.id, registry: r, typ: typ}
}

// OnFunc is a convenience method for subscribing with a function.
func (r *Registry) OnFunc(typ Type, key string, fn func(context.Context, Event) error) Subscription {
	return r.On(typ, key, HandlerFunc(fn))
}

// Off removes handlers for typ. With no keys it clears every handler for
// that type; with keys it removes only those. Removing a key that is not
// registered is a no-op.
func (r *Registry) Off(typ Type, keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(keys) == 0 {
		delete(r.handlers, typ)
		return
	}

	remove := make(map[string]bool, len(keys))
	for _, k := range keys {
		remove[k] = true
	}

	kept := r.handlers[typ][:0]
	for _, reg := range r.handlers[typ] {
		if !remove[reg.key] {
			kept = append(kept, reg)
		}
	}
	if len(kept) == 0 {
		delete(r.handlers, typ)
	} else {
		r.handlers[typ] = kept
	}
}

// SetFallback installs fn to receive events dispatched with no registered
// handler. The invalidation router uses this to surface unmapped domain
// events instead of dropping them silently.
func (r *Registry) SetFallback(fn FallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fn
}

// Dispatch delivers event synchronously to every handler registered for its
// type, in registration order. A handler that fails or panics does not
// prevent the remaining handlers from running.
func (r *Registry) Dispatch(ctx context.Context, event Event) {
	r.mu.RLock()
	regs := r.handlers[event.Type]
	// Copy so handlers can (un)subscribe without deadlocking.
	regsCopy := make([]*registration, len(regs))
	copy(regsCopy, regs)
	fallback := r.fallback
	r.mu.RUnlock()

	if len(regsCopy) == 0 {
		if fallback != nil {
			fallback(ctx, event.Type, event.Payload)
		}
		return
	}

	for _, reg := range regsCopy {
		r.invoke(ctx, reg, event)
	}
}

func (r *Registry) invoke(ctx context.Context, reg *registration, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.String("key", reg.key),
				zap.Any("panic", rec))
		}
	}()

	if err := reg.handler.Handle(ctx, event); err != nil {
		r.logger.Error("Handler error",
			zap.String("event_type", string(event.Type)),
			zap.String("key", reg.key),
			zap.Error(err))
	}
}

// HandlerCount returns the number of handlers registered for typ.
func (r *Registry) HandlerCount(typ Type) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[typ])
}

// remove deletes one registration by subscription id.
func (r *Registry) remove(typ Type, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.handlers[typ][:0]
	for _, reg := range r.handlers[typ] {
		if reg.id != id {
			kept = append(kept, reg)
		}
	}
	if len(kept) == 0 {
		delete(r.handlers, typ)
	} else {
		r.handlers[typ] = kept
	}
}
