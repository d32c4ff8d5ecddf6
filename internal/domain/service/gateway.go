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
)

// PurchaseResult discriminates the synchronous outcome of a purchase
// request. Accepted only means the store took the request; entitlement
// arrives asynchronously through the event listener.
type PurchaseResult string

const (
	PurchaseAccepted  PurchaseResult = "accepted"
	PurchaseCancelled PurchaseResult = "cancelled"
	PurchaseFailed    PurchaseResult = "failed"
)

// Gateway is the commerce gateway adapter: it owns the store connection,
// the catalog and the listener registration. One gateway per process.
type Gateway struct {
	store           CommerceStore
	listener        *Listener
	skus            []string
	settleDelay     time.Duration
	catalogAttempts int
	logger          *zap.Logger

	mu      sync.RWMutex
	catalog []entity.Product
	events  *EventSubscription
}

// NewGateway creates a new commerce gateway for the configured SKUs.
func NewGateway(
	store CommerceStore,
	listener *Listener,
	skus []string,
	settleDelay time.Duration,
	catalogAttempts int,
	logger *zap.Logger,
) *Gateway {
	if catalogAttempts < 1 {
		catalogAttempts = 1
	}
	return &Gateway{
		store:           store,
		listener:        listener,
		skus:            skus,
		settleDelay:     settleDelay,
		catalogAttempts: catalogAttempts,
		logger:          logger,
	}
}

// Initialize connects to the platform store, registers the purchase event
// listeners and fetches the catalog. Listener registration comes before the
// catalog fetch: redelivered transactions must be acknowledgeable even when
// the catalog query fails, so a fetch failure is logged and leaves the
// catalog empty rather than failing initialization.
func (g *Gateway) Initialize(ctx context.Context) error {
	if err := g.store.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrStoreUnavailable, err)
	}

	g.mu.Lock()
	if g.events == nil {
		g.events = g.listener.Start()
	}
	g.mu.Unlock()

	// The store connection can need a moment to settle before catalog
	// queries succeed; retry with a delay instead of failing immediately.
	var products []entity.Product
	var err error
	for attempt := 0; attempt < g.catalogAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.settleDelay):
			}
		}
		products, err = g.store.Products(ctx, g.skus)
		if err == nil {
			break
		}
	}
	if err != nil {
		g.logger.Warn("catalog fetch failed, continuing without products",
			zap.Strings("skus", g.skus),
			zap.Error(err),
		)
		return nil
	}

	g.mu.Lock()
	g.catalog = products
	g.mu.Unlock()

	if len(products) == 0 {
		// Configuration/environment warning, not a crash: product ids not
		// matching the store listing is the usual cause.
		g.logger.Warn("store returned no products for configured SKUs",
			zap.Strings("skus", g.skus),
			zap.Error(domainErrors.ErrCatalogEmpty),
		)
	} else {
		g.logger.Info("catalog loaded", zap.Int("products", len(products)))
	}
	return nil
}

// Products returns the last-fetched catalog; empty if never initialized or
// if the catalog fetch failed.
func (g *Gateway) Products() []entity.Product {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]entity.Product, len(g.catalog))
	copy(out, g.catalog)
	return out
}

// PurchaseSubscription validates the sku against the fetched catalog and
// asks the store to present its purchase sheet. Dismissal is a cancelled
// result, not an error; real completion or failure arrives via the listener.
func (g *Gateway) PurchaseSubscription(ctx context.Context, sku string) (PurchaseResult, error) {
	if !g.hasProduct(sku) {
		return PurchaseFailed, fmt.Errorf("%w: %s", domainErrors.ErrUnknownProduct, sku)
	}

	g.listener.beginAttempt(sku)
	err := g.store.RequestPurchase(ctx, sku)
	switch {
	case err == nil:
		return PurchaseAccepted, nil
	case errors.Is(err, domainErrors.ErrPurchaseCancelled):
		g.logger.Info("purchase sheet dismissed", zap.String("sku", sku))
		return PurchaseCancelled, nil
	default:
		return PurchaseFailed, fmt.Errorf("purchase request failed: %w", err)
	}
}

// OpenSubscriptionManagement deep links into the OS subscription management
// surface.
func (g *Gateway) OpenSubscriptionManagement(ctx context.Context) error {
	return g.store.OpenSubscriptionManagement(ctx)
}

// Close unregisters the event listeners and tears down the store
// connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	events := g.events
	g.events = nil
	g.mu.Unlock()

	if events != nil {
		events.Close()
	}
	return g.store.Close()
}

func (g *Gateway) hasProduct(sku string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.catalog {
		if p.SKU == sku {
			return true
		}
	}
	return false
}
