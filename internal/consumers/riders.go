package consumers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/api"
	"github.com/deliverly/adminsync/internal/cache"
	"github.com/deliverly/adminsync/internal/domain"
)

// Riders is the accessor behind the rider roster views.
type Riders struct {
	store    *cache.Store
	api      *api.Client
	policies Policies
	logger   *zap.Logger
}

// NewRiders creates the riders accessor.
func NewRiders(store *cache.Store, client *api.Client, policies Policies, logger *zap.Logger) *Riders {
	return &Riders{store: store, api: client, policies: policies, logger: logger.Named("riders")}
}

// List declares the rider list query for one filter set.
func (r *Riders) List(f domain.RiderFilters) *Query[domain.Page[domain.Rider]] {
	return newQuery(r.store, domain.RidersList().With(f), r.policies.LiveList,
		func(ctx context.Context) (domain.Page[domain.Rider], error) {
			return r.api.ListRiders(ctx, f)
		})
}

// Detail declares the single-rider query.
func (r *Riders) Detail(id string) *Query[domain.Rider] {
	return newQuery(r.store, domain.RiderDetail(id), r.policies.Detail,
		func(ctx context.Context) (domain.Rider, error) {
			return r.api.GetRider(ctx, id)
		})
}

// UpdateStatus activates or suspends a rider and invalidates the rider
// namespaces this write affects.
func (r *Riders) UpdateStatus(ctx context.Context, id, status string) error {
	if err := r.api.UpdateRiderStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update rider %s status: %w", id, err)
	}

	r.store.Invalidate(domain.RiderDetail(id))
	r.store.Invalidate(domain.RidersList())
	r.store.Invalidate(domain.RiderStatsNS())
	r.logger.Debug("Rider status updated",
		zap.String("rider_id", id),
		zap.String("status", status))
	return nil
}
