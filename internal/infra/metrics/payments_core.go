package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentSessionsTotal,
		paymentsRevenueTotal,
		providerCallDuration,
	)
}

var (
	paymentSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sessions_total",
			Help: "Payment session transitions by resulting state (pending/paid/failed/expired).",
		},
		[]string{"state"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_minor_total",
			Help: "The total value of paid sessions in minor currency units, labeled by currency.",
		},
		[]string{"currency"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_provider_call_duration_seconds",
			Help:    "Latency of payment provider calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "op", "success"},
	)
)

func IncPaymentSession(state string) {
	paymentSessionsTotal.WithLabelValues(norm(state)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func ObserveProviderCall(provider, op string, ok bool, d time.Duration) {
	providerCallDuration.WithLabelValues(norm(provider), op, strconv.FormatBool(ok)).Observe(d.Seconds())
}
