// Package metrics defines the prometheus collectors of the submission coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the coordinator collectors.
type Metrics struct {
	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
	Refreshes       *prometheus.CounterVec
	Reverted        prometheus.Counter
	DroppedEvents   prometheus.Counter
}

// New registers the collectors with reg. A nil reg creates unregistered
// collectors, which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_attempts_total",
			Help: "Submission attempts by intent kind and outcome",
		}, []string{"intent", "outcome"}),
		AttemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketdesk_attempt_duration_seconds",
			Help:    "Time from intent to resolution",
			Buckets: prometheus.DefBuckets,
		}, []string{"intent"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ticketdesk_attempt_in_flight",
			Help: "1 while an attempt is outside Idle",
		}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_snapshot_refreshes_total",
			Help: "Balance snapshot refreshes by result",
		}, []string{"result"}),
		Reverted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketdesk_reverted_after_submit_total",
			Help: "Transactions reported as submitted whose receipt later showed a revert",
		}),
		DroppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketdesk_events_dropped_total",
			Help: "Notifications dropped because a subscriber was not draining",
		}),
	}
}
