package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
	domainErrors "github.com/neobile/smarttutor-iap/internal/domain/errors"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/external/store"
)

func catalog() []entity.Product {
	return []entity.Product{
		{SKU: "com.neobile.smarttutor.monthly", Period: entity.PeriodMonth},
		{SKU: "com.neobile.smarttutor.yearly", Period: entity.PeriodYear},
	}
}

func TestProducts(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a connection", func(t *testing.T) {
		s := store.NewSandbox(catalog())
		_, err := s.Products(ctx, []string{"com.neobile.smarttutor.yearly"})
		assert.ErrorIs(t, err, domainErrors.ErrStoreUnavailable)
	})

	t.Run("fails until the connection settles", func(t *testing.T) {
		s := store.NewSandbox(catalog())
		s.SettleDelay = 20 * time.Millisecond
		require.NoError(t, s.Connect(ctx))

		_, err := s.Products(ctx, []string{"com.neobile.smarttutor.yearly"})
		assert.Error(t, err)

		time.Sleep(25 * time.Millisecond)
		products, err := s.Products(ctx, []string{"com.neobile.smarttutor.yearly"})
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "com.neobile.smarttutor.yearly", products[0].SKU)
	})

	t.Run("returns only requested SKUs", func(t *testing.T) {
		s := store.NewSandbox(catalog())
		require.NoError(t, s.Connect(ctx))

		products, err := s.Products(ctx, []string{"com.neobile.smarttutor.monthly", "com.unknown.sku"})
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "com.neobile.smarttutor.monthly", products[0].SKU)
	})
}

func TestPurchaseDelivery(t *testing.T) {
	ctx := context.Background()
	s := store.NewSandbox(catalog())
	require.NoError(t, s.Connect(ctx))

	p := s.CompletePurchase("com.neobile.smarttutor.yearly")
	assert.NotEmpty(t, p.TransactionID)
	assert.NotEmpty(t, p.TransactionReceipt)

	delivered := <-s.PurchaseUpdates()
	assert.Equal(t, p.TransactionID, delivered.TransactionID)

	// The record stays restorable after delivery.
	available, err := s.AvailablePurchases(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, p.TransactionID, available[0].TransactionID)

	// Finishing is idempotent and tracked per transaction.
	require.NoError(t, s.FinishTransaction(ctx, p))
	require.NoError(t, s.FinishTransaction(ctx, p))
	assert.Equal(t, 2, s.FinishCount(p.TransactionID))
}

func TestCloseStopsTheStreams(t *testing.T) {
	s := store.NewSandbox(catalog())
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, open := <-s.PurchaseUpdates()
	assert.False(t, open)
	_, open2 := <-s.PurchaseErrors()
	assert.False(t, open2)

	// A closed sandbox does not reconnect.
	assert.ErrorIs(t, s.Connect(context.Background()), domainErrors.ErrStoreUnavailable)
}

func TestEmitAfterCloseIsNoOp(t *testing.T) {
	s := store.NewSandbox(catalog())
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Close())

	assert.NotPanics(t, func() {
		s.CompletePurchase("com.neobile.smarttutor.yearly")
		s.Redeliver(entity.Purchase{TransactionID: "tx-late"})
		s.EmitFailure(entity.PurchaseFailure{SKU: "com.neobile.smarttutor.yearly"})
	})
}

func TestFailNextFinish(t *testing.T) {
	ctx := context.Background()
	s := store.NewSandbox(catalog())
	require.NoError(t, s.Connect(ctx))

	p := entity.Purchase{TransactionID: "tx-1"}
	s.FailNextFinish(context.DeadlineExceeded)
	require.Error(t, s.FinishTransaction(ctx, p))
	assert.Zero(t, s.FinishCount("tx-1"))

	// The failure is one-shot.
	require.NoError(t, s.FinishTransaction(ctx, p))
	assert.Equal(t, 1, s.FinishCount("tx-1"))
}
