// Package metrics exposes the monitor's operational counters via the
// default prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CycleDuration observes wall time of one full reconciliation cycle.
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one full reconciliation cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	// ServicesChecked counts services evaluated per cycle outcome.
	ServicesChecked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "services_checked_total",
		Help:      "Services evaluated, by outcome.",
	}, []string{"outcome"}) // ok, skipped, error

	// Transitions counts lifecycle state transitions applied.
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "transitions_total",
		Help:      "Lifecycle transitions applied, by reason.",
	}, []string{"reason"}) // warn_70, exhausted, expired, warn_three_days, overage_delete, grace_delete

	// PanelErrors counts failed panel operations.
	PanelErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "panel_errors_total",
		Help:      "Failed remote panel operations, by panel ID.",
	}, []string{"panel"})

	// NotificationsSent counts messages handed to the dispatcher.
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "notifications_total",
		Help:      "Notifications enqueued, by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		CycleDuration,
		ServicesChecked,
		Transitions,
		PanelErrors,
		NotificationsSent,
	)
}
