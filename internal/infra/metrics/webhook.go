package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhookRequests,
		webhookDuration,
	)
}

var (
	// result: ok|rejected|ignored|error
	// reason: invalid_signature|invalid_request|read_body|no_outcome|unknown_session|confirm
	webhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_requests_total",
			Help: "Provider webhook deliveries by provider, result and reason.",
		},
		[]string{"provider", "result", "reason"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_webhook_duration_seconds",
			Help:    "Duration of provider webhook handling in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider", "result"},
	)
)

func ObserveWebhook(provider, result, reason string, d time.Duration) {
	webhookRequests.WithLabelValues(norm(provider), norm(result), norm(reason)).Inc()
	webhookDuration.WithLabelValues(norm(provider), norm(result)).Observe(d.Seconds())
}
