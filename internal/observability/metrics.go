package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrackingReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ribit", Name: "tracking_reads_total", Help: "Tracking read-model requests by outcome"},
		[]string{"outcome"},
	)
	CoordinateFetchFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ribit", Name: "coordinate_fetch_failures_total", Help: "Coordinate lookups absorbed as empty trails"})
	WaitlistSignupsTotal    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ribit", Name: "waitlist_signups_total", Help: "Waitlist signup attempts by outcome"},
		[]string{"outcome"},
	)
	PaymentIntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ribit", Name: "payment_intents_total", Help: "Payment intent creations by outcome"},
		[]string{"outcome"},
	)
	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ribit", Name: "stream_subscribers", Help: "Connected websocket tracking viewers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ribit", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ribit",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
