package consumers

import (
	"context"

	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/api"
	"github.com/deliverly/adminsync/internal/cache"
	"github.com/deliverly/adminsync/internal/domain"
)

// Stats is the accessor behind the dashboard tiles and charts. Stats are
// read-only; they change only through server push or other domains' writes.
type Stats struct {
	store    *cache.Store
	api      *api.Client
	policies Policies
	logger   *zap.Logger
}

// NewStats creates the stats accessor.
func NewStats(store *cache.Store, client *api.Client, policies Policies, logger *zap.Logger) *Stats {
	return &Stats{store: store, api: client, policies: policies, logger: logger.Named("stats")}
}

// Dashboard declares the landing tile query.
func (s *Stats) Dashboard() *Query[domain.DashboardStats] {
	return newQuery(s.store, domain.DashboardStatsNS(), s.policies.Stats,
		func(ctx context.Context) (domain.DashboardStats, error) {
			return s.api.GetDashboardStats(ctx)
		})
}

// Orders declares the order chart query.
func (s *Stats) Orders() *Query[domain.OrderStats] {
	return newQuery(s.store, domain.OrderStatsNS(), s.policies.Stats,
		func(ctx context.Context) (domain.OrderStats, error) {
			return s.api.GetOrderStats(ctx)
		})
}

// Riders declares the rider chart query.
func (s *Stats) Riders() *Query[domain.RiderStats] {
	return newQuery(s.store, domain.RiderStatsNS(), s.policies.Stats,
		func(ctx context.Context) (domain.RiderStats, error) {
			return s.api.GetRiderStats(ctx)
		})
}

// Payments declares the payments chart query.
func (s *Stats) Payments() *Query[domain.PaymentStats] {
	return newQuery(s.store, domain.PaymentStatsNS(), s.policies.Stats,
		func(ctx context.Context) (domain.PaymentStats, error) {
			return s.api.GetPaymentStats(ctx)
		})
}

// Support declares the support workload query.
func (s *Stats) Support() *Query[domain.SupportStats] {
	return newQuery(s.store, domain.SupportStatsNS(), s.policies.Stats,
		func(ctx context.Context) (domain.SupportStats, error) {
			return s.api.GetSupportStats(ctx)
		})
}
