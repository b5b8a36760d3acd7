// Package metrics defines Prometheus metrics for the Code Jam backend.
//
// Metric naming follows Prometheus conventions:
//   - codejam_ prefix for all custom metrics
//   - _total suffix for counters
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Subscribers is the number of live SSE subscribers per feed.
	Subscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "codejam_subscribers",
			Help: "Number of connected feed subscribers.",
		},
		[]string{"feed"},
	)

	// BroadcastsTotal counts payloads fanned out per feed.
	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codejam_broadcasts_total",
			Help: "Total payloads broadcast to feed subscribers.",
		},
		[]string{"feed"},
	)

	// DroppedPayloadsTotal counts payloads evicted from full subscriber queues.
	DroppedPayloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codejam_dropped_payloads_total",
			Help: "Total payloads dropped because a subscriber queue was full.",
		},
		[]string{"feed"},
	)

	// WebhooksTotal counts inbound GitHub webhooks by outcome.
	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codejam_webhooks_total",
			Help: "Total GitHub webhook deliveries by result.",
		},
		[]string{"result"},
	)

	// RelayResubscribesTotal counts Redis relay subscriptions that failed or
	// dropped and were retried.
	RelayResubscribesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codejam_relay_resubscribes_total",
			Help: "Total Redis relay subscription failures followed by a retry.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Subscribers,
		BroadcastsTotal,
		DroppedPayloadsTotal,
		WebhooksTotal,
		RelayResubscribesTotal,
	)
}
