package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		contextsTotal,
		credentialsIssuedTotal,
		accessDecisionsTotal,
		classificationsTotal,
		eventPublishTotal,
		rateLimitedTotal,
	)
}

var (
	contextsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_contexts_total",
			Help: "Payment context lifecycle operations (created/consumed/replayed/expired/reopened).",
		},
		[]string{"op"},
	)

	credentialsIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credentials_issued_total",
			Help: "Bearer credentials issued, by offer.",
		},
		[]string{"offer"},
	)

	accessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Access gate decisions by result and deny reason.",
		},
		[]string{"result", "reason"},
	)

	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_classifications_total",
			Help: "Inbound content requests by classification outcome.",
		},
		[]string{"outcome"},
	)

	eventPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Lifecycle event publish attempts by status.",
		},
		[]string{"status"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route.",
		},
		[]string{"route"},
	)
)

func IncContext(op string)             { contextsTotal.WithLabelValues(norm(op)).Inc() }
func IncCredentialIssued(offer string) { credentialsIssuedTotal.WithLabelValues(norm(offer)).Inc() }
func IncClassification(outcome string) { classificationsTotal.WithLabelValues(norm(outcome)).Inc() }
func IncEventPublish(status string)    { eventPublishTotal.WithLabelValues(norm(status)).Inc() }
func IncRateLimited(route string)      { rateLimitedTotal.WithLabelValues(route).Inc() }
func IncAccessDecision(result, reason string) {
	accessDecisionsTotal.WithLabelValues(norm(result), norm(reason)).Inc()
}
