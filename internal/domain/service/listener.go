package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/metrics"
)

// AttemptState tracks a purchase attempt through the listener.
type AttemptState string

const (
	AttemptInitiated                  AttemptState = "initiated"
	AttemptCompleted                  AttemptState = "completed"
	AttemptCancelled                  AttemptState = "cancelled"
	AttemptErroredPendingVerification AttemptState = "errored_pending_verification"
)

// Listener is the process-wide observer on the store's purchase-completed
// and purchase-error streams. It stays registered for the life of the
// gateway: completion events can arrive at any time, including redeliveries
// of unacknowledged transactions from previous sessions.
type Listener struct {
	store      CommerceStore
	reconciler *Reconciler
	logger     *zap.Logger

	mu          sync.Mutex
	lastAttempt AttemptState
	attemptSKU  string
}

// NewListener creates a new purchase event listener
func NewListener(store CommerceStore, reconciler *Reconciler, logger *zap.Logger) *Listener {
	return &Listener{
		store:      store,
		reconciler: reconciler,
		logger:     logger,
	}
}

// EventSubscription is the handle for a running listener registration.
// Close unregisters and waits for in-flight event handling to finish.
type EventSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops event consumption.
func (s *EventSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Start begins consuming both event streams in the background and returns
// the registration handle. The gateway calls this before the first catalog
// fetch so no delivery is missed.
func (l *Listener) Start() *EventSubscription {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go l.run(ctx, done)
	return &EventSubscription{cancel: cancel, done: done}
}

func (l *Listener) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	updates := l.store.PurchaseUpdates()
	failures := l.store.PurchaseErrors()
	l.logger.Info("purchase event listener started")

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-updates:
			if !ok {
				updates = nil
				break
			}
			l.HandlePurchase(ctx, p)
		case f, ok := <-failures:
			if !ok {
				failures = nil
				break
			}
			l.HandleFailure(ctx, f)
		}
		if updates == nil && failures == nil {
			return
		}
	}
}

// HandlePurchase finalizes one delivered purchase record and forwards its
// receipt to the remote validator. Safe under redelivery: acknowledging an
// already-finished transaction is a store-side no-op and re-validating the
// same receipt yields the same authoritative status.
func (l *Listener) HandlePurchase(ctx context.Context, p entity.Purchase) {
	if p.TransactionReceipt == "" {
		l.logger.Warn("purchase delivered without receipt, skipping",
			zap.String("transaction_id", p.TransactionID),
		)
		return
	}

	if err := l.store.FinishTransaction(ctx, p); err != nil {
		// Leave the transaction pending; the store will redeliver it.
		metrics.FinalizeFailures.Inc()
		l.logger.Error("failed to finish transaction",
			zap.String("transaction_id", p.TransactionID),
			zap.Error(err),
		)
		return
	}
	metrics.PurchasesFinalized.Inc()

	sub, err := l.reconciler.ApplyPurchase(ctx, p)
	if err != nil {
		// Not discarded: the next reconciliation re-derives status from the
		// restorable purchase records.
		l.logger.Warn("receipt validation deferred to next reconciliation",
			zap.String("transaction_id", p.TransactionID),
			zap.Error(err),
		)
		return
	}

	l.completeAttempt(p.ProductID)
	l.logger.Info("purchase finalized",
		zap.String("product_id", p.ProductID),
		zap.String("transaction_id", p.TransactionID),
		zap.String("status", string(sub.Status)),
	)
}

// HandleFailure processes a purchase-error event. The event is never
// surfaced directly; resolution goes through the ambiguous-failure policy.
func (l *Listener) HandleFailure(ctx context.Context, f entity.PurchaseFailure) AttemptState {
	l.setAttempt(AttemptErroredPendingVerification)
	state := ResolveAmbiguousFailure(ctx, l.reconciler, f, l.logger)
	l.setAttempt(state)
	return state
}

// LastAttempt reports the state of the most recent purchase attempt.
func (l *Listener) LastAttempt() AttemptState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastAttempt
}

func (l *Listener) setAttempt(state AttemptState) {
	l.mu.Lock()
	l.lastAttempt = state
	l.mu.Unlock()
}

// beginAttempt marks a fresh user-initiated attempt for sku.
func (l *Listener) beginAttempt(sku string) {
	l.mu.Lock()
	l.lastAttempt = AttemptInitiated
	l.attemptSKU = sku
	l.mu.Unlock()
}

// completeAttempt promotes the attempt state for a finalized purchase.
// Redelivered transactions for other products are finalized and validated as
// usual but must not disturb an attempt that is still in flight.
func (l *Listener) completeAttempt(sku string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastAttempt == AttemptInitiated && l.attemptSKU != sku {
		return
	}
	l.lastAttempt = AttemptCompleted
}
