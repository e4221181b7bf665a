package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminRequestTotal) }

var adminRequestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_request_total",
		Help: "Tracks attempts to use admin endpoints.",
	},
	[]string{"route", "status"}, // status: ok|not_found|unauthorized|error
)

func IncAdminRequest(route, status string) {
	adminRequestTotal.WithLabelValues(route, norm(status)).Inc()
}
