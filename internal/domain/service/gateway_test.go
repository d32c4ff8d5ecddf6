package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobile/smarttutor-iap/internal/domain/service"

	domainErrors "github.com/neobile/smarttutor-iap/internal/domain/errors"
)

func TestGatewayInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("retries the catalog fetch while the connection settles", func(t *testing.T) {
		r := newRig(withSettle(15*time.Millisecond, 5))
		r.store.SettleDelay = 30 * time.Millisecond

		require.NoError(t, r.gateway.Initialize(ctx))
		defer r.gateway.Close()

		assert.Len(t, r.gateway.Products(), 2)
	})

	t.Run("catalog fetch failure is non-fatal and the listener still runs", func(t *testing.T) {
		r := newRig()
		// A single attempt against a store that never settles in time.
		r.store.SettleDelay = time.Hour

		require.NoError(t, r.gateway.Initialize(ctx))
		defer r.gateway.Close()
		assert.Empty(t, r.gateway.Products())

		// Listener registration precedes the catalog fetch, so redelivered
		// transactions are acknowledged even without a catalog.
		p := r.store.CompletePurchase(yearlySKU)
		require.Eventually(t, func() bool {
			return r.store.FinishCount(p.TransactionID) == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("initialize is an error when the store connection fails", func(t *testing.T) {
		r := newRig()
		require.NoError(t, r.store.Close())

		err := r.gateway.Initialize(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, domainErrors.ErrStoreUnavailable)
	})
}

func TestPurchaseSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted", func(t *testing.T) {
		r := newRig()
		require.NoError(t, r.gateway.Initialize(ctx))
		defer r.gateway.Close()

		result, err := r.gateway.PurchaseSubscription(ctx, yearlySKU)
		require.NoError(t, err)
		assert.Equal(t, service.PurchaseAccepted, result)
		// Completion has not arrived yet; the attempt is only initiated.
		assert.Equal(t, service.AttemptInitiated, r.listener.LastAttempt())
	})

	t.Run("sheet dismissal is cancelled, not an error", func(t *testing.T) {
		r := newRig()
		require.NoError(t, r.gateway.Initialize(ctx))
		defer r.gateway.Close()

		r.store.CancelNextPurchase()
		result, err := r.gateway.PurchaseSubscription(ctx, yearlySKU)
		require.NoError(t, err)
		assert.Equal(t, service.PurchaseCancelled, result)
	})

	t.Run("store failure surfaces as failed", func(t *testing.T) {
		r := newRig()
		require.NoError(t, r.gateway.Initialize(ctx))
		defer r.gateway.Close()

		r.store.FailNextPurchase(errors.New("billing unavailable"))
		result, err := r.gateway.PurchaseSubscription(ctx, yearlySKU)
		require.Error(t, err)
		assert.Equal(t, service.PurchaseFailed, result)
	})

	t.Run("sku outside the fetched catalog is rejected", func(t *testing.T) {
		r := newRig()
		require.NoError(t, r.gateway.Initialize(ctx))
		defer r.gateway.Close()

		result, err := r.gateway.PurchaseSubscription(ctx, "com.neobile.smarttutor.lifetime")
		require.Error(t, err)
		assert.ErrorIs(t, err, domainErrors.ErrUnknownProduct)
		assert.Equal(t, service.PurchaseFailed, result)
	})

	t.Run("empty catalog rejects every sku", func(t *testing.T) {
		r := newRig()
		// Never initialized: no catalog was fetched.
		result, err := r.gateway.PurchaseSubscription(ctx, yearlySKU)
		require.Error(t, err)
		assert.ErrorIs(t, err, domainErrors.ErrUnknownProduct)
		assert.Equal(t, service.PurchaseFailed, result)
	})
}

func TestGatewayClose(t *testing.T) {
	ctx := context.Background()
	r := newRig()
	require.NoError(t, r.gateway.Initialize(ctx))

	require.NoError(t, r.gateway.Close())
	// Idempotent: the second close finds no registration and a closed store.
	require.NoError(t, r.gateway.Close())
}
