package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
	domainErrors "github.com/neobile/smarttutor-iap/internal/domain/errors"
)

// Sandbox is an in-memory platform store. It backs the agent in sandbox
// builds and the test suites; the production store is supplied by the host
// app bridge and satisfies the same service.CommerceStore contract.
//
// It reproduces the quirks the gateway has to tolerate: catalog queries fail
// until the connection has settled, completed purchases are redelivered
// until finished, and purchase errors can fire for charges that went
// through.
type Sandbox struct {
	mu          sync.Mutex
	connected   bool
	connectedAt time.Time

	// SettleDelay makes Products fail until it has elapsed after Connect.
	SettleDelay time.Duration
	// ManagementOpens counts OpenSubscriptionManagement calls.
	ManagementOpens int

	catalog   []entity.Product
	available []entity.Purchase
	pending   []entity.Purchase
	finished  map[string]int

	nextPurchaseCancelled bool
	nextPurchaseErr       error
	nextFinishErr         error

	updates  chan entity.Purchase
	failures chan entity.PurchaseFailure
	closed   bool
}

// NewSandbox creates a sandbox store with the given catalog.
func NewSandbox(catalog []entity.Product) *Sandbox {
	return &Sandbox{
		catalog:  catalog,
		finished: make(map[string]int),
		updates:  make(chan entity.Purchase, 16),
		failures: make(chan entity.PurchaseFailure, 16),
	}
}

// Connect opens the sandbox connection.
func (s *Sandbox) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domainErrors.ErrStoreUnavailable
	}
	s.connected = true
	s.connectedAt = time.Now()
	return nil
}

// Products returns catalog entries for the requested SKUs. Until SettleDelay
// has elapsed after Connect the query fails, mimicking the platform store
// needing time to settle.
func (s *Sandbox) Products(ctx context.Context, skus []string) ([]entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, domainErrors.ErrStoreUnavailable
	}
	if s.SettleDelay > 0 && time.Since(s.connectedAt) < s.SettleDelay {
		return nil, errors.New("store connection still settling")
	}

	requested := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		requested[sku] = struct{}{}
	}
	var products []entity.Product
	for _, p := range s.catalog {
		if _, ok := requested[p.SKU]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// RequestPurchase presents the (simulated) purchase sheet. The outcome of
// the sheet itself is configured via FailNextPurchase/CancelNextPurchase;
// actual completion arrives on the PurchaseUpdates channel.
func (s *Sandbox) RequestPurchase(ctx context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return domainErrors.ErrStoreUnavailable
	}
	if s.nextPurchaseCancelled {
		s.nextPurchaseCancelled = false
		return domainErrors.ErrPurchaseCancelled
	}
	if s.nextPurchaseErr != nil {
		err := s.nextPurchaseErr
		s.nextPurchaseErr = nil
		return err
	}
	return nil
}

// FinishTransaction acknowledges a delivered purchase so the store stops
// redelivering it. Finishing an already-finished transaction is a no-op.
func (s *Sandbox) FinishTransaction(ctx context.Context, p entity.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextFinishErr != nil {
		err := s.nextFinishErr
		s.nextFinishErr = nil
		return err
	}
	s.finished[p.TransactionID]++
	for i, pending := range s.pending {
		if pending.TransactionID == p.TransactionID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	return nil
}

// AvailablePurchases lists restorable purchase records.
func (s *Sandbox) AvailablePurchases(ctx context.Context) ([]entity.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, domainErrors.ErrStoreUnavailable
	}
	out := make([]entity.Purchase, len(s.available))
	copy(out, s.available)
	return out, nil
}

// PurchaseUpdates is the purchase-completed event stream.
func (s *Sandbox) PurchaseUpdates() <-chan entity.Purchase {
	return s.updates
}

// PurchaseErrors is the purchase-error event stream.
func (s *Sandbox) PurchaseErrors() <-chan entity.PurchaseFailure {
	return s.failures
}

// OpenSubscriptionManagement records the deep link into the OS subscription
// management surface.
func (s *Sandbox) OpenSubscriptionManagement(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ManagementOpens++
	return nil
}

// Close tears the sandbox down and closes the event streams.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.connected = false
	close(s.updates)
	close(s.failures)
	return nil
}

// CompletePurchase emits a purchase-completed event for sku and makes the
// record restorable. Returns the generated purchase record. The send happens
// under the store lock so it cannot race a concurrent Close.
func (s *Sandbox) CompletePurchase(sku string) entity.Purchase {
	p := entity.Purchase{
		ProductID:          sku,
		TransactionID:      uuid.New().String(),
		TransactionReceipt: "sandbox-receipt-" + uuid.New().String(),
		TransactionDate:    time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return p
	}
	s.available = append(s.available, p)
	s.pending = append(s.pending, p)
	s.updates <- p
	return p
}

// Redeliver re-emits a purchase event, as the platform does for transactions
// that were never finished. No-op once the store is closed.
func (s *Sandbox) Redeliver(p entity.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.updates <- p
}

// EmitFailure emits a purchase-error event. No-op once the store is closed.
func (s *Sandbox) EmitFailure(f entity.PurchaseFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.failures <- f
}

// CancelNextPurchase makes the next RequestPurchase resolve as a user
// cancellation.
func (s *Sandbox) CancelNextPurchase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPurchaseCancelled = true
}

// FailNextPurchase makes the next RequestPurchase fail with err.
func (s *Sandbox) FailNextPurchase(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPurchaseErr = err
}

// FailNextFinish makes the next FinishTransaction fail with err, leaving the
// transaction unacknowledged.
func (s *Sandbox) FailNextFinish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFinishErr = err
}

// SeedAvailable adds restorable purchase records without emitting events.
func (s *Sandbox) SeedAvailable(purchases ...entity.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = append(s.available, purchases...)
}

// FinishCount reports how many times a transaction has been acknowledged.
func (s *Sandbox) FinishCount(transactionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished[transactionID]
}
