package validator

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"
)

// Google is the best-effort local fallback check for Play Store purchases.
// The receipt is the JSON blob react-native-iap produces on Android:
// {"packageName":...,"productId":...,"purchaseToken":...}.
type Google struct {
	serviceAccountJSON string
}

// NewGoogle creates a new Google Play fallback validator
func NewGoogle(serviceAccountJSON string) *Google {
	return &Google{serviceAccountJSON: serviceAccountJSON}
}

// Check verifies a subscription purchase via the Android Publisher API.
func (g *Google) Check(ctx context.Context, receiptData string) (bool, error) {
	var receipt struct {
		PackageName   string `json:"packageName"`
		ProductID     string `json:"productId"`
		PurchaseToken string `json:"purchaseToken"`
	}
	if err := json.Unmarshal([]byte(receiptData), &receipt); err != nil {
		return false, fmt.Errorf("failed to parse receipt data: %w", err)
	}

	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(g.serviceAccountJSON),
		androidpublisher.AndroidpublisherScope,
	)
	if err != nil {
		return false, fmt.Errorf("failed to parse service account credentials: %w", err)
	}

	service, err := androidpublisher.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return false, fmt.Errorf("failed to create Android Publisher service: %w", err)
	}

	sub, err := service.Purchases.Subscriptions.Get(
		receipt.PackageName,
		receipt.ProductID,
		receipt.PurchaseToken,
	).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to verify Google Play subscription: %w", err)
	}

	// PaymentState 1 = payment received
	return sub.PaymentState != nil && *sub.PaymentState == 1, nil
}
