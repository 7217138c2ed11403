// Package metrics defines the Prometheus collectors exposed at /metrics:
// per-endpoint request counters/latencies, embedding queue depth, worker
// utilization, and consolidation run outcomes. Only the request counter and
// latency histogram are updated (by the API middleware); nothing in this
// module sets the queue, worker, embedding-job or consolidation collectors,
// so they are registered but stay at zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts every handled request by route, method, and
	// status class.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmem_http_requests_total",
		Help: "Total HTTP requests handled, by route, method, and status class.",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration tracks handler latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexusmem_http_request_duration_seconds",
		Help:    "HTTP handler latency in seconds, by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// QueueDepth reports pending/processing/dead embedding job counts.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexusmem_embedding_queue_depth",
		Help: "Embedding job queue depth, by state.",
	}, []string{"state"})

	// WorkerUtilization reports the fraction of embedding workers currently
	// processing a job (0 to 1).
	WorkerUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexusmem_embedding_worker_utilization",
		Help: "Fraction of embedding workers currently processing a job.",
	})

	// EmbeddingJobsTotal counts completed embedding jobs by outcome.
	EmbeddingJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmem_embedding_jobs_total",
		Help: "Embedding jobs completed, by outcome (done, failed, dead).",
	}, []string{"outcome"})

	// ConsolidationRunsTotal counts consolidation batch runs by outcome.
	ConsolidationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmem_consolidation_runs_total",
		Help: "Consolidation batch runs, by outcome (success, failure).",
	}, []string{"outcome"})

	// ConsolidationEpisodesBoosted records episodes_boosted from the most
	// recent consolidation run.
	ConsolidationEpisodesBoosted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexusmem_consolidation_episodes_boosted",
		Help: "Episodes boosted by the most recent consolidation run.",
	})
)

// ObserveHTTPRequest records a completed request's outcome and latency.
func ObserveHTTPRequest(route, method, statusClass string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(route, method, statusClass).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(seconds)
}

// SetQueueDepth updates the pending/processing/dead gauges together.
func SetQueueDepth(pending, processing, dead int) {
	QueueDepth.WithLabelValues("pending").Set(float64(pending))
	QueueDepth.WithLabelValues("processing").Set(float64(processing))
	QueueDepth.WithLabelValues("dead").Set(float64(dead))
}
