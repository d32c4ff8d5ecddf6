package service_test

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
	domainErrors "github.com/neobile/smarttutor-iap/internal/domain/errors"
	"github.com/neobile/smarttutor-iap/internal/domain/service"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/external/store"
)

const (
	monthlySKU = "com.neobile.smarttutor.monthly"
	yearlySKU  = "com.neobile.smarttutor.yearly"
)

var testSKUs = []string{monthlySKU, yearlySKU}

func testCatalog() []entity.Product {
	return []entity.Product{
		{SKU: monthlySKU, Title: "Smart Tutor Premium", LocalizedPrice: "$9.99", Period: entity.PeriodMonth},
		{SKU: yearlySKU, Title: "Smart Tutor Premium", LocalizedPrice: "$39.99", Period: entity.PeriodYear},
	}
}

// fakeBackend is an in-memory SubscriptionBackend that records every call so
// tests can assert on what the reconciler sent.
type fakeBackend struct {
	mu        sync.Mutex
	subs      map[string]entity.Subscription
	puts      []entity.Subscription
	validated []entity.Purchase
	deleted   []string
	cancelled []string

	// verdict overrides the default valid/premium validation response.
	verdict func(p entity.Purchase) (entity.ReceiptValidation, error)
	getErr  error
	putErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{subs: make(map[string]entity.Subscription)}
}

func (b *fakeBackend) GetSubscription(ctx context.Context, userID string) (entity.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return entity.FreeSubscription(), b.getErr
	}
	sub, ok := b.subs[userID]
	if !ok {
		return entity.FreeSubscription(), nil
	}
	return sub, nil
}

func (b *fakeBackend) PutSubscription(ctx context.Context, userID string, sub entity.Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.puts = append(b.puts, sub)
	b.subs[userID] = sub
	return nil
}

func (b *fakeBackend) ValidateReceipt(ctx context.Context, userID string, p entity.Purchase) (entity.ReceiptValidation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validated = append(b.validated, p)

	result := entity.ReceiptValidation{IsValid: true, Status: entity.StatusPremium}
	if b.verdict != nil {
		var err error
		result, err = b.verdict(p)
		if err != nil {
			return entity.ReceiptValidation{}, err
		}
	}

	sub := entity.FreeSubscription()
	if result.Status == entity.StatusPremium {
		sub = entity.Subscription{Status: entity.StatusPremium, SubscriptionID: p.TransactionID}
	}
	b.subs[userID] = sub
	return result, nil
}

func (b *fakeBackend) Cancel(ctx context.Context, userID string) (entity.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, userID)
	free := entity.FreeSubscription()
	b.subs[userID] = free
	return free, nil
}

func (b *fakeBackend) DeleteSubscription(ctx context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, userID)
	delete(b.subs, userID)
	return nil
}

func (b *fakeBackend) validatedTransactions() []entity.Purchase {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]entity.Purchase, len(b.validated))
	copy(out, b.validated)
	return out
}

func (b *fakeBackend) lastPut() (entity.Subscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.puts) == 0 {
		return entity.Subscription{}, false
	}
	return b.puts[len(b.puts)-1], true
}

// fakeIdentity returns a fixed uid; an empty uid reads as signed out.
type fakeIdentity struct {
	uid string
}

func (f *fakeIdentity) CurrentUserID(ctx context.Context) (string, error) {
	if f.uid == "" {
		return "", domainErrors.ErrNoIdentity
	}
	return f.uid, nil
}

// fakeChecker is a scripted local receipt fallback.
type fakeChecker struct {
	ok  bool
	err error
}

func (f *fakeChecker) Check(ctx context.Context, receiptData string) (bool, error) {
	return f.ok, f.err
}

// rig wires a sandbox store, fake backend and the full service graph the way
// the agent binary does.
type rig struct {
	store      *store.Sandbox
	backend    *fakeBackend
	identity   *fakeIdentity
	reconciler *service.Reconciler
	listener   *service.Listener
	gateway    *service.Gateway
}

type rigOption func(*rigConfig)

type rigConfig struct {
	uid             string
	platform        string
	fallback        service.ReceiptChecker
	settleDelay     time.Duration
	catalogAttempts int
}

func withPlatform(platform string) rigOption {
	return func(c *rigConfig) { c.platform = platform }
}

func withFallback(fallback service.ReceiptChecker) rigOption {
	return func(c *rigConfig) { c.fallback = fallback }
}

func withSettle(delay time.Duration, attempts int) rigOption {
	return func(c *rigConfig) {
		c.settleDelay = delay
		c.catalogAttempts = attempts
	}
}

func withUser(uid string) rigOption {
	return func(c *rigConfig) { c.uid = uid }
}

func newRig(opts ...rigOption) *rig {
	cfg := rigConfig{
		uid:             "user-1",
		platform:        "ios",
		catalogAttempts: 1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sandbox := store.NewSandbox(testCatalog())
	backend := newFakeBackend()
	ident := &fakeIdentity{uid: cfg.uid}
	logger := zap.NewNop()

	reconciler := service.NewReconciler(sandbox, backend, ident, cfg.fallback, testSKUs, cfg.platform, logger)
	listener := service.NewListener(sandbox, reconciler, logger)
	gateway := service.NewGateway(sandbox, listener, testSKUs, cfg.settleDelay, cfg.catalogAttempts, logger)

	return &rig{
		store:      sandbox,
		backend:    backend,
		identity:   ident,
		reconciler: reconciler,
		listener:   listener,
		gateway:    gateway,
	}
}
