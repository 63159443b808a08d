package consumers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/api"
	"github.com/deliverly/adminsync/internal/cache"
	"github.com/deliverly/adminsync/internal/domain"
)

// Orders is the accessor behind the order table and order detail dialog.
type Orders struct {
	store    *cache.Store
	api      *api.Client
	policies Policies
	logger   *zap.Logger
}

// NewOrders creates the orders accessor.
func NewOrders(store *cache.Store, client *api.Client, policies Policies, logger *zap.Logger) *Orders {
	return &Orders{store: store, api: client, policies: policies, logger: logger.Named("orders")}
}

// List declares the paginated order list query for one filter set.
func (o *Orders) List(f domain.OrderFilters) *Query[domain.Page[domain.Order]] {
	return newQuery(o.store, domain.OrdersList().With(f), o.policies.LiveList,
		func(ctx context.Context) (domain.Page[domain.Order], error) {
			return o.api.ListOrders(ctx, f)
		})
}

// Detail declares the single-order query.
func (o *Orders) Detail(id string) *Query[domain.Order] {
	return newQuery(o.store, domain.OrderDetail(id), o.policies.Detail,
		func(ctx context.Context) (domain.Order, error) {
			return o.api.GetOrder(ctx, id)
		})
}

// UpdateStatus writes a status transition and invalidates this domain's own
// namespaces, the client-initiated complement to server-push invalidation.
func (o *Orders) UpdateStatus(ctx context.Context, id, status string) error {
	if err := o.api.UpdateOrderStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update order %s status: %w", id, err)
	}

	o.store.Invalidate(domain.OrderDetail(id))
	o.store.Invalidate(domain.OrdersList())
	o.store.Invalidate(domain.OrderStatsNS())
	o.logger.Debug("Order status updated",
		zap.String("order_id", id),
		zap.String("status", status))
	return nil
}
