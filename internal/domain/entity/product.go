package entity

// BillingPeriod is the renewal cadence of a subscription product.
type BillingPeriod string

const (
	PeriodMonth BillingPeriod = "month"
	PeriodYear  BillingPeriod = "year"
)

// Product is a subscription offering fetched from the platform store
// catalog. Immutable once fetched; refreshed only by re-querying.
type Product struct {
	SKU            string
	Title          string
	Description    string
	LocalizedPrice string
	Period         BillingPeriod
}
