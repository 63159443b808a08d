// Package router translates inbound domain events into cache invalidation.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/cache"
	"github.com/deliverly/adminsync/internal/domain"
	"github.com/deliverly/adminsync/internal/events"
)

// handlerKey identifies the router's registrations in the registry, so a
// rebuilt router replaces rather than duplicates its handlers.
const handlerKey = "invalidation-router"

// RouteFunc maps one event payload to the namespace prefixes it affects.
// Most routes are payload-independent; ticket-scoped ones narrow to the one
// ticket named in the payload.
type RouteFunc func(payload json.RawMessage) []cache.Namespace

// Router owns the static event-to-namespace routing table. Routing is a
// table lookup, not branching logic, so the catalog can be audited and
// tested exhaustively. The table is built once and never mutated.
type Router struct {
	store  *cache.Store
	logger *zap.Logger
	table  map[events.Type]RouteFunc
}

// New builds the router and verifies the table is total over the event
// catalog: an unmapped event type means stale UI that nobody notices, so it
// is rejected at construction instead of discovered in production.
func New(store *cache.Store, logger *zap.Logger) (*Router, error) {
	r := &Router{
		store:  store,
		logger: logger.Named("router"),
		table:  buildTable(),
	}

	for _, typ := range events.Catalog() {
		if _, ok := r.table[typ]; !ok {
			return nil, fmt.Errorf("router: no route for event type %q", typ)
		}
	}
	return r, nil
}

func buildTable() map[events.Type]RouteFunc {
	static := func(namespaces ...cache.Namespace) RouteFunc {
		return func(json.RawMessage) []cache.Namespace { return namespaces }
	}

	return map[events.Type]RouteFunc{
		events.OrderStatusUpdate: static(
			domain.OrdersList(), domain.OrderStatsNS(), domain.DashboardStatsNS(),
		),
		events.NewOrderAvailable: static(
			domain.OrdersList(), domain.OrderStatsNS(), domain.DashboardStatsNS(),
		),
		events.KYCSubmitted: static(
			domain.KYCList(), domain.RiderStatsNS(), domain.DashboardStatsNS(),
		),
		events.PaymentCompleted: static(
			domain.PaymentStatsNS(), domain.DashboardStatsNS(), domain.OrdersList(),
		),
		events.RiderStatusUpdate: static(
			domain.RidersList(), domain.RiderStatsNS(), domain.DashboardStatsNS(),
		),
		events.NewTicketCreated: static(
			domain.TicketsList(), domain.SupportStatsNS(),
		),
		events.TicketResponse: ticketScoped(
			domain.TicketsList(),
		),
		events.TicketStatusUpdate: ticketScoped(
			domain.TicketsList(), domain.SupportStatsNS(),
		),
		events.TicketUserResponse: static(
			domain.TicketsList(), domain.SupportStatsNS(),
		),
	}
}

// ticketScoped routes to the one ticket's detail namespace plus the given
// static prefixes. A payload without a ticket id falls back to the whole
// detail subtree rather than dropping the event.
func ticketScoped(also ...cache.Namespace) RouteFunc {
	return func(payload json.RawMessage) []cache.Namespace {
		var p events.TicketPayload
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &p)
		}
		detail := domain.TicketDetails()
		if p.TicketID != "" {
			detail = domain.TicketDetail(p.TicketID)
		}
		return append([]cache.Namespace{detail}, also...)
	}
}

// Bind registers the router for every cataloged event type and installs the
// registry fallback that flags unmapped domain events. Registration is
// idempotent thanks to the fixed handler key.
func (r *Router) Bind(registry *events.Registry) {
	for typ := range r.table {
		registry.On(typ, handlerKey, events.HandlerFunc(r.handle))
	}
	registry.SetFallback(r.unmapped)
}

// handle invalidates every namespace prefix affected by one event. It never
// fetches: refetching is the next reader's job.
func (r *Router) handle(_ context.Context, event events.Event) error {
	route, ok := r.table[event.Type]
	if !ok {
		r.unmapped(context.Background(), event.Type, event.Payload)
		return nil
	}

	total := 0
	for _, prefix := range route(event.Payload) {
		total += r.store.Invalidate(prefix)
	}
	r.logger.Debug("Routed event",
		zap.String("event_type", string(event.Type)),
		zap.Int("entries_invalidated", total))
	return nil
}

// unmapped fires for dispatched event types with no handler. Connection
// pseudo-events are expected to pass through; anything else is a routing
// gap that panics in development builds and logs loudly in production.
func (r *Router) unmapped(_ context.Context, typ events.Type, _ json.RawMessage) {
	if typ == events.Connect || typ == events.Disconnect {
		return
	}
	r.logger.DPanic("Inbound event type has no route; stale UI will not self-correct",
		zap.String("event_type", string(typ)))
}

// Types returns the event types the router handles, for diagnostics.
func (r *Router) Types() []events.Type {
	out := make([]events.Type, 0, len(r.table))
	for typ := range r.table {
		out = append(out, typ)
	}
	return out
}
