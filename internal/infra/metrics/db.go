package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storePoolStats) }

var storePoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "store_pool_connections",
		Help: "Current state of a backing store's connection pool.",
	},
	[]string{"store", "state"}, // store: postgres|redis, state: total|idle|in_use
)

func SetPoolStats(store string, total, idle, inUse int32) {
	s := norm(store)
	storePoolStats.WithLabelValues(s, "total").Set(float64(total))
	storePoolStats.WithLabelValues(s, "idle").Set(float64(idle))
	storePoolStats.WithLabelValues(s, "in_use").Set(float64(inUse))
}
