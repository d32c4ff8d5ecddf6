package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PurchasesFinalized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchases_finalized_total",
			Help: "Number of purchase transactions acknowledged with the platform store",
		},
	)

	FinalizeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_finalize_failures_total",
			Help: "Number of failed transaction acknowledgments (left pending for redelivery)",
		},
	)

	ReceiptValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_validations_total",
			Help: "Receipt validation submissions by outcome",
		},
		[]string{"outcome"},
	)

	ValidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "receipt_validation_duration_seconds",
			Help:    "Latency of remote receipt validation calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	Reconciliations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "status_reconciliations_total",
			Help: "Number of subscription status reconciliations against the backend",
		},
	)

	AmbiguousFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambiguous_purchase_failures_total",
			Help: "Purchase-error events resolved via server re-verification, by resolution",
		},
		[]string{"resolution"},
	)
)

func Register() {
	prometheus.MustRegister(
		PurchasesFinalized,
		FinalizeFailures,
		ReceiptValidations,
		ValidationDuration,
		Reconciliations,
		AmbiguousFailures,
	)
}
