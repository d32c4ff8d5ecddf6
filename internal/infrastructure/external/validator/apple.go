package validator

import (
	"context"
	"fmt"

	"github.com/awa/go-iap/appstore"
)

// Apple is the best-effort local fallback check for App Store receipts,
// used only when the remote validator cannot be reached. Acceptance here is
// provisional: server truth is reconciled at the next opportunity.
type Apple struct {
	sharedSecret string
	environment  appstore.Environment
}

// NewApple creates a new Apple fallback validator
func NewApple(sharedSecret string, isProduction bool) *Apple {
	env := appstore.Sandbox
	if isProduction {
		env = appstore.Production
	}
	return &Apple{
		sharedSecret: sharedSecret,
		environment:  env,
	}
}

// Check verifies a receipt against Apple's verifyReceipt endpoint and
// reports whether it represents a live subscription purchase.
func (a *Apple) Check(ctx context.Context, receiptData string) (bool, error) {
	client := appstore.New()

	req := appstore.IAPRequest{
		ReceiptData: receiptData,
		Password:    a.sharedSecret,
	}
	var resp appstore.IAPResponse
	if err := client.Verify(ctx, req, &resp); err != nil {
		return false, fmt.Errorf("failed to verify receipt with App Store: %w", err)
	}

	// Status 0 means the receipt parsed and matched; anything else is a
	// rejection, not a transport error.
	if resp.Status != 0 {
		return false, nil
	}
	return len(resp.Receipt.InApp) > 0 || len(resp.LatestReceiptInfo) > 0, nil
}
