package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/metrics"
)

// StatusVerifier re-derives authoritative subscription status from the
// remote backend.
type StatusVerifier interface {
	VerifySubscriptionStatus(ctx context.Context) (entity.Subscription, error)
}

// ResolveAmbiguousFailure decides what a purchase-error event means.
//
// The commerce layer's error callback is unreliable: it has been observed to
// fire for sheet-dismissal races and for network blips after the charge went
// through. Telling a paying user their purchase failed is worse than a
// silent no-op, so instead of surfacing the event the server status is
// re-verified and allowed to decide: premium means the purchase actually
// completed, free means the event is treated as a silent cancellation.
//
// Known risk: an entitlement that already exists for a different product can
// mask a genuine failure. Kept for compatibility with observed store
// behavior; isolated here so the policy can be revisited in one place.
func ResolveAmbiguousFailure(ctx context.Context, verifier StatusVerifier, failure entity.PurchaseFailure, logger *zap.Logger) AttemptState {
	logger.Warn("purchase error received, re-verifying server status",
		zap.String("sku", failure.SKU),
		zap.String("code", failure.Code),
		zap.String("message", failure.Message),
	)

	sub, err := verifier.VerifySubscriptionStatus(ctx)
	if err != nil {
		logger.Warn("status re-verification failed after purchase error", zap.Error(err))
	}

	if sub.IsPremium() {
		metrics.AmbiguousFailures.WithLabelValues("completed").Inc()
		logger.Info("purchase error superseded by premium server status",
			zap.String("sku", failure.SKU),
		)
		return AttemptCompleted
	}

	metrics.AmbiguousFailures.WithLabelValues("cancelled").Inc()
	return AttemptCancelled
}
