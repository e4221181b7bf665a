package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(workerJobsTotal, contextsSweptTotal) }

var (
	workerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_total",
			Help: "Background jobs processed, labeled by worker and status.",
		},
		[]string{"worker", "status"}, // status: 'ok', 'error', 'dropped'
	)

	contextsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_contexts_swept_total",
			Help: "Expired payment contexts removed by the sweeper.",
		},
	)
)

func IncWorkerJob(worker, status string) {
	workerJobsTotal.WithLabelValues(norm(worker), norm(status)).Inc()
}

func AddContextsSwept(n int) {
	if n > 0 {
		contextsSweptTotal.Add(float64(n))
	}
}
