package entity

import "time"

// Purchase is a purchase record created by the platform commerce layer.
// The client observes these records but never owns them; the store may
// redeliver a record until it is finished/acknowledged.
type Purchase struct {
	ProductID          string
	TransactionID      string
	TransactionReceipt string
	TransactionDate    time.Time
}

// PurchaseFailure describes a purchase-error event emitted by the platform
// store. Error signals are unreliable: a failure can fire even when the
// underlying charge went through, so consumers must re-verify server status
// before surfacing anything.
type PurchaseFailure struct {
	SKU     string
	Code    string
	Message string
}

// LatestForSKUs returns the purchase with the most recent transaction date
// among the given subscription SKUs. Only the latest record is authoritative
// for status determination; older renewals and repurchases are ignored.
func LatestForSKUs(purchases []Purchase, skus []string) (Purchase, bool) {
	known := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		known[sku] = struct{}{}
	}

	var latest Purchase
	found := false
	for _, p := range purchases {
		if _, ok := known[p.ProductID]; !ok {
			continue
		}
		if !found || p.TransactionDate.After(latest.TransactionDate) {
			latest = p
			found = true
		}
	}
	return latest, found
}
