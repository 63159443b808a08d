package consumers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/api"
	"github.com/deliverly/adminsync/internal/cache"
	"github.com/deliverly/adminsync/internal/domain"
)

// KYC is the accessor behind the identity-verification review queue.
type KYC struct {
	store    *cache.Store
	api      *api.Client
	policies Policies
	logger   *zap.Logger
}

// NewKYC creates the KYC accessor.
func NewKYC(store *cache.Store, client *api.Client, policies Policies, logger *zap.Logger) *KYC {
	return &KYC{store: store, api: client, policies: policies, logger: logger.Named("kyc")}
}

// List declares the submission queue query for one status.
func (k *KYC) List(status string) *Query[[]domain.KYCSubmission] {
	ns := domain.KYCList().With(map[string]string{"status": status})
	return newQuery(k.store, ns, k.policies.LiveList,
		func(ctx context.Context) ([]domain.KYCSubmission, error) {
			return k.api.ListKYC(ctx, status)
		})
}

// Review approves or rejects one submission and invalidates the queue plus
// the rider stats the decision moves.
func (k *KYC) Review(ctx context.Context, id string, approve bool, reason string) error {
	if err := k.api.ReviewKYC(ctx, id, approve, reason); err != nil {
		return fmt.Errorf("review kyc %s: %w", id, err)
	}

	k.store.Invalidate(domain.KYCList())
	k.store.Invalidate(domain.RiderStatsNS())
	k.logger.Debug("KYC submission reviewed",
		zap.String("submission_id", id),
		zap.Bool("approved", approve))
	return nil
}
