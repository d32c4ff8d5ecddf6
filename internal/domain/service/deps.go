package service

import (
	"context"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
)

// CommerceStore is the platform commerce layer (StoreKit / Play Billing)
// as exposed by the host app bridge. The sandbox implementation in
// infrastructure/external/store satisfies it for tests and sandbox builds.
type CommerceStore interface {
	Connect(ctx context.Context) error
	Products(ctx context.Context, skus []string) ([]entity.Product, error)
	// RequestPurchase presents the native purchase sheet. A nil return means
	// the request was accepted, not that the purchase succeeded; user
	// dismissal surfaces as ErrPurchaseCancelled.
	RequestPurchase(ctx context.Context, sku string) error
	// FinishTransaction acknowledges a delivered purchase so the store stops
	// redelivering it. Must be idempotent.
	FinishTransaction(ctx context.Context, p entity.Purchase) error
	AvailablePurchases(ctx context.Context) ([]entity.Purchase, error)
	PurchaseUpdates() <-chan entity.Purchase
	PurchaseErrors() <-chan entity.PurchaseFailure
	OpenSubscriptionManagement(ctx context.Context) error
	Close() error
}

// SubscriptionBackend is the remote subscription API holding server-owned
// entitlement truth.
type SubscriptionBackend interface {
	GetSubscription(ctx context.Context, userID string) (entity.Subscription, error)
	PutSubscription(ctx context.Context, userID string, sub entity.Subscription) error
	ValidateReceipt(ctx context.Context, userID string, p entity.Purchase) (entity.ReceiptValidation, error)
	Cancel(ctx context.Context, userID string) (entity.Subscription, error)
	DeleteSubscription(ctx context.Context, userID string) error
}

// Identity resolves the authenticated user. Implementations return
// ErrNoIdentity when no user is signed in.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// ReceiptChecker is an optional local fallback for receipt verification,
// consulted only when the remote validator is unreachable.
type ReceiptChecker interface {
	Check(ctx context.Context, receiptData string) (bool, error)
}
