package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Spok95/placesdir/internal/apperr"
)

var (
	// LedgerOperations — покупки и списания по исходу.
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placesdir_ledger_operations_total",
			Help: "Package purchases and entitlement consumptions by outcome",
		},
		[]string{"operation", "outcome"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placesdir_webhook_events_total",
			Help: "Payment gateway webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	ListingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placesdir_listing_transitions_total",
			Help: "Listing lifecycle transitions by target status",
		},
		[]string{"status"},
	)

	SchedulerSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placesdir_scheduler_sweeps_total",
			Help: "Expiration sweeps by sweep and outcome",
		},
		[]string{"sweep", "outcome"},
	)

	SchedulerRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placesdir_scheduler_rows_total",
			Help: "Listings changed by expiration sweeps",
		},
		[]string{"sweep"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "placesdir_search_duration_seconds",
			Help:    "Listing search latency by geo mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placesdir_notifications_total",
			Help: "Notification dispatches by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// Outcome — метка исхода: ok или стабильный код ошибки.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.Code(err)
}
