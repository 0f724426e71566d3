// README: Prometheus collectors for lifecycle transitions, finalization, feeds, and HTTP traffic.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rideshare", Name: "transitions_total", Help: "Lifecycle operations by outcome"},
		[]string{"op", "result"},
	)
	Finalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rideshare", Name: "finalize_total", Help: "Ride finalizations by outcome"},
		[]string{"result"},
	)
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "rideshare", Name: "feed_subscribers", Help: "Open live feed subscriptions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rideshare", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rideshare",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
