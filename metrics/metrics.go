// Package metrics holds the prometheus collectors of the service. They are
// registered to the default registry and exposed at /metrics by main.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wabiz"

var (
	WebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by method and response code.",
		},
		[]string{"method", "code"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Classified notifications by kind.",
		},
		[]string{"kind"},
	)

	NotificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications never applied to the store, by reason.",
		},
		[]string{"reason"},
	)

	Results = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Per notification outcome: changed, unchanged, duplicate or failure.",
		},
		[]string{"kind", "outcome"},
	)

	MediaFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_fetches_total",
			Help:      "Media downloads by result.",
		},
		[]string{"result"},
	)

	ProcessSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_process_seconds",
			Help:      "Time spent processing one webhook batch.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	Broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Normalized events handed to broadcasters, by event type.",
		},
		[]string{"type"},
	)

	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_subscribers",
			Help:      "Connected websocket subscribers.",
		},
	)
)

func init() {
	prometheus.MustRegister(WebhookRequests)
	prometheus.MustRegister(Notifications)
	prometheus.MustRegister(NotificationsDropped)
	prometheus.MustRegister(Results)
	prometheus.MustRegister(MediaFetches)
	prometheus.MustRegister(ProcessSeconds)
	prometheus.MustRegister(Broadcasts)
	prometheus.MustRegister(Subscribers)
}
