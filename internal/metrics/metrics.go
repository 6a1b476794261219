// Package metrics provides Prometheus instrumentation for the moderation
// bot: message check throughput and latency, and the fate of every scheduled
// deletion.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values for DeletionsTotal.
const (
	OutcomeDeleted          = "deleted"
	OutcomeFailed           = "failed"
	OutcomeClaimedElsewhere = "claimed_elsewhere"
)

var (
	// MessagesChecked counts screened messages, labeled by source ("discord",
	// "nats") and result ("blocked", "clean", "skipped").
	MessagesChecked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_messages_checked_total",
		Help: "Total number of messages screened by the filter",
	}, []string{"source", "result"})

	// DeletionsTotal counts delete attempts by outcome.
	DeletionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_deletions_total",
		Help: "Total number of scheduled message deletions by outcome",
	}, []string{"outcome"})

	// CheckDuration records how long a single filter check takes.
	CheckDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "modbot_check_duration_seconds",
		Help:    "Filter check latency in seconds",
		Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
	})

	// PendingDeletions tracks deletions waiting for their delay to elapse.
	PendingDeletions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modbot_pending_deletions",
		Help: "Current number of scheduled deletions not yet executed",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesChecked,
		DeletionsTotal,
		CheckDuration,
		PendingDeletions,
	)
}

// ResultLabel maps a verdict to the MessagesChecked result label.
func ResultLabel(blocked bool) string {
	if blocked {
		return "blocked"
	}
	return "clean"
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
