package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
	"github.com/neobile/smarttutor-iap/internal/domain/service"
)

type fakeVerifier struct {
	sub entity.Subscription
	err error
}

func (f *fakeVerifier) VerifySubscriptionStatus(ctx context.Context) (entity.Subscription, error) {
	return f.sub, f.err
}

func TestResolveAmbiguousFailure(t *testing.T) {
	ctx := context.Background()
	failure := entity.PurchaseFailure{SKU: yearlySKU, Code: "E_UNKNOWN", Message: "purchase failed"}

	t.Run("premium server status supersedes the error", func(t *testing.T) {
		verifier := &fakeVerifier{sub: entity.Subscription{Status: entity.StatusPremium, SubscriptionID: "tx-1"}}
		state := service.ResolveAmbiguousFailure(ctx, verifier, failure, zap.NewNop())
		assert.Equal(t, service.AttemptCompleted, state)
	})

	t.Run("free server status reads as silent cancellation", func(t *testing.T) {
		verifier := &fakeVerifier{sub: entity.FreeSubscription()}
		state := service.ResolveAmbiguousFailure(ctx, verifier, failure, zap.NewNop())
		assert.Equal(t, service.AttemptCancelled, state)
	})

	t.Run("verification failure still resolves as cancellation", func(t *testing.T) {
		verifier := &fakeVerifier{sub: entity.FreeSubscription(), err: errors.New("backend down")}
		state := service.ResolveAmbiguousFailure(ctx, verifier, failure, zap.NewNop())
		assert.Equal(t, service.AttemptCancelled, state)
	})
}
