package errors

import "errors"

var (
	// Commerce layer errors
	ErrStoreUnavailable  = errors.New("platform store unavailable")
	ErrCatalogEmpty      = errors.New("product catalog is empty")
	ErrUnknownProduct    = errors.New("product not found in catalog")
	ErrPurchaseCancelled = errors.New("purchase cancelled by user")

	// Identity errors
	ErrNoIdentity = errors.New("no authenticated user")

	// Backend errors
	ErrBackendUnavailable   = errors.New("subscription backend unavailable")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
