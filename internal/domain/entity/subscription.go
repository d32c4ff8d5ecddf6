package entity

// Status is the user's entitlement tier. Server-owned truth; the client only
// caches the most recently reconciled value.
type Status string

const (
	StatusFree    Status = "free"
	StatusPremium Status = "premium"
)

// Subscription is the entitlement record for a user, keyed server-side by
// the user identifier. Created at signup with status free, premium after a
// validated purchase, back to free on cancellation or failed re-validation.
type Subscription struct {
	Status         Status `json:"status"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// ReceiptValidation is the remote validator's verdict on a submitted
// receipt. Status is authoritative either way; an invalid receipt simply
// comes back with status free.
type ReceiptValidation struct {
	IsValid bool   `json:"isValid"`
	Status  Status `json:"status"`
}

// FreeSubscription is the conservative default used whenever the
// authoritative status cannot be determined.
func FreeSubscription() Subscription {
	return Subscription{Status: StatusFree}
}

// IsPremium reports whether the subscription entitles premium features.
func (s Subscription) IsPremium() bool {
	return s.Status == StatusPremium
}
