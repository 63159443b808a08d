package consumers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/api"
	"github.com/deliverly/adminsync/internal/cache"
	"github.com/deliverly/adminsync/internal/domain"
)

// Tickets is the accessor behind the support inbox and ticket dialogs.
type Tickets struct {
	store    *cache.Store
	api      *api.Client
	policies Policies
	logger   *zap.Logger
}

// NewTickets creates the tickets accessor.
func NewTickets(store *cache.Store, client *api.Client, policies Policies, logger *zap.Logger) *Tickets {
	return &Tickets{store: store, api: client, policies: policies, logger: logger.Named("tickets")}
}

// List declares the ticket inbox query for one filter set.
func (t *Tickets) List(f domain.TicketFilters) *Query[domain.Page[domain.Ticket]] {
	return newQuery(t.store, domain.TicketsList().With(f), t.policies.LiveList,
		func(ctx context.Context) (domain.Page[domain.Ticket], error) {
			return t.api.ListTickets(ctx, f)
		})
}

// Detail declares the single-ticket conversation query.
func (t *Tickets) Detail(id string) *Query[api.TicketThread] {
	return newQuery(t.store, domain.TicketDetail(id), t.policies.Detail,
		func(ctx context.Context) (api.TicketThread, error) {
			return t.api.GetTicket(ctx, id)
		})
}

// Respond posts an admin reply and invalidates the one ticket it lands on
// plus the inbox ordering.
func (t *Tickets) Respond(ctx context.Context, id, body string) error {
	if err := t.api.RespondTicket(ctx, id, body); err != nil {
		return fmt.Errorf("respond to ticket %s: %w", id, err)
	}

	t.store.Invalidate(domain.TicketDetail(id))
	t.store.Invalidate(domain.TicketsList())
	t.logger.Debug("Ticket response sent", zap.String("ticket_id", id))
	return nil
}

// UpdateStatus transitions one ticket and invalidates the namespaces the
// transition shows up in.
func (t *Tickets) UpdateStatus(ctx context.Context, id, status string) error {
	if err := t.api.UpdateTicketStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update ticket %s status: %w", id, err)
	}

	t.store.Invalidate(domain.TicketDetail(id))
	t.store.Invalidate(domain.TicketsList())
	t.store.Invalidate(domain.SupportStatsNS())
	t.logger.Debug("Ticket status updated",
		zap.String("ticket_id", id),
		zap.String("status", status))
	return nil
}
