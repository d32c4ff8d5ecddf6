package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
	domainErrors "github.com/neobile/smarttutor-iap/internal/domain/errors"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/metrics"
)

// Reconciler re-derives authoritative subscription status from platform
// purchase records and the remote backend, and owns the process-wide cached
// status consulted by gating logic. Writes are last-write-wins; status
// changes are infrequent and re-verification is always possible.
type Reconciler struct {
	store    CommerceStore
	backend  SubscriptionBackend
	identity Identity
	fallback ReceiptChecker
	skus     []string
	platform string
	logger   *zap.Logger

	mu     sync.RWMutex
	cached entity.Subscription
}

// NewReconciler creates a new subscription status reconciler. fallback may
// be nil to disable local receipt acceptance.
func NewReconciler(
	store CommerceStore,
	backend SubscriptionBackend,
	identity Identity,
	fallback ReceiptChecker,
	skus []string,
	platform string,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		store:    store,
		backend:  backend,
		identity: identity,
		fallback: fallback,
		skus:     skus,
		platform: platform,
		logger:   logger,
		cached:   entity.FreeSubscription(),
	}
}

// CachedStatus returns the most recently reconciled subscription status.
// Gating must use this rather than a live call; it may be briefly stale.
func (r *Reconciler) CachedStatus() entity.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cached
}

func (r *Reconciler) setCached(sub entity.Subscription) {
	r.mu.Lock()
	r.cached = sub
	r.mu.Unlock()
}

// VerifySubscriptionStatus enumerates restorable purchases, validates the
// latest one among the known subscription SKUs and updates server-side
// status accordingly. Zero restorable purchases is itself authoritative
// evidence of non-entitlement: status is explicitly set to free, not merely
// skipped. Called on app-foreground transitions and on sign-in.
func (r *Reconciler) VerifySubscriptionStatus(ctx context.Context) (entity.Subscription, error) {
	userID, err := r.identity.CurrentUserID(ctx)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNoIdentity) {
			free := entity.FreeSubscription()
			r.setCached(free)
			return free, nil
		}
		return r.CachedStatus(), fmt.Errorf("failed to resolve identity: %w", err)
	}

	metrics.Reconciliations.Inc()

	purchases, err := r.store.AvailablePurchases(ctx)
	if err != nil {
		r.logger.Warn("failed to list restorable purchases", zap.Error(err))
		return r.CachedStatus(), fmt.Errorf("failed to list restorable purchases: %w", err)
	}

	latest, found := entity.LatestForSKUs(purchases, r.skus)
	if !found {
		free := entity.FreeSubscription()
		if err := r.backend.PutSubscription(ctx, userID, free); err != nil {
			r.logger.Warn("failed to push free status to backend",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		r.setCached(free)
		return free, nil
	}

	return r.validateAndCache(ctx, userID, latest)
}

// ApplyPurchase submits a finalized purchase record to the remote validator
// and updates the cached status from its verdict. Used by the event listener
// after a successful acknowledgment.
func (r *Reconciler) ApplyPurchase(ctx context.Context, p entity.Purchase) (entity.Subscription, error) {
	userID, err := r.identity.CurrentUserID(ctx)
	if err != nil {
		return r.CachedStatus(), fmt.Errorf("cannot validate purchase: %w", err)
	}
	return r.validateAndCache(ctx, userID, p)
}

func (r *Reconciler) validateAndCache(ctx context.Context, userID string, p entity.Purchase) (entity.Subscription, error) {
	start := time.Now()
	result, err := r.backend.ValidateReceipt(ctx, userID, p)
	metrics.ValidationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReceiptValidations.WithLabelValues("unreachable").Inc()
		if r.fallback != nil {
			if ok, ferr := r.fallback.Check(ctx, p.TransactionReceipt); ferr == nil && ok {
				// Provisional local acceptance; server truth wins at the
				// next reconciliation.
				sub := entity.Subscription{
					Status:         entity.StatusPremium,
					SubscriptionID: p.TransactionID,
				}
				r.setCached(sub)
				r.logger.Warn("accepted receipt via local fallback, pending server reconciliation",
					zap.String("transaction_id", p.TransactionID),
				)
				return sub, nil
			}
		}
		free := entity.FreeSubscription()
		r.setCached(free)
		return free, fmt.Errorf("receipt validation unavailable: %w", err)
	}

	// The verdict is authoritative either way: an invalid or expired receipt
	// comes back with status free and that is not an error.
	sub := entity.Subscription{Status: result.Status}
	if result.Status == entity.StatusPremium {
		sub.SubscriptionID = p.TransactionID
	}
	if result.IsValid {
		metrics.ReceiptValidations.WithLabelValues("valid").Inc()
	} else {
		metrics.ReceiptValidations.WithLabelValues("invalid").Inc()
	}
	r.setCached(sub)
	r.logger.Info("receipt validated",
		zap.String("user_id", userID),
		zap.String("transaction_id", p.TransactionID),
		zap.Bool("valid", result.IsValid),
		zap.String("status", string(sub.Status)),
	)
	return sub, nil
}

// LoadSubscription reads the authoritative status for a user. Fails soft to
// free on any network or parse error: gating must always have a definite
// answer.
func (r *Reconciler) LoadSubscription(ctx context.Context, userID string) entity.Subscription {
	sub, err := r.backend.GetSubscription(ctx, userID)
	if err != nil {
		r.logger.Warn("failed to load subscription, defaulting to free",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		sub = entity.FreeSubscription()
	}
	r.setCached(sub)
	return sub
}

// CancelSubscription starts cancellation for the current user. On iOS the
// purchase API cannot reliably self-cancel, so the OS subscription
// management surface is opened alongside the server-side cancel request and
// the local status is left to the next reconciliation. On other platforms
// the returned status takes effect immediately.
func (r *Reconciler) CancelSubscription(ctx context.Context) error {
	userID, err := r.identity.CurrentUserID(ctx)
	if err != nil {
		return fmt.Errorf("cannot cancel subscription: %w", err)
	}

	if r.platform == "ios" {
		if err := r.store.OpenSubscriptionManagement(ctx); err != nil {
			r.logger.Warn("failed to open subscription management", zap.Error(err))
		}
	}

	sub, err := r.backend.Cancel(ctx, userID)
	if err != nil {
		return fmt.Errorf("server-side cancellation failed: %w", err)
	}
	if r.platform != "ios" {
		r.setCached(sub)
	}
	return nil
}

// DeleteAccountData removes the user's entitlement data server-side, paired
// with identity-provider account deletion handled elsewhere.
func (r *Reconciler) DeleteAccountData(ctx context.Context) error {
	userID, err := r.identity.CurrentUserID(ctx)
	if err != nil {
		return fmt.Errorf("cannot delete account data: %w", err)
	}
	if err := r.backend.DeleteSubscription(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete subscription data: %w", err)
	}
	r.setCached(entity.FreeSubscription())
	return nil
}
