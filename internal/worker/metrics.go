// Package worker – Prometheus instrumentation for the job pipeline.
//
// Labels are kept low-cardinality: job outcomes and failure codes only,
// never per-user or per-reading values.
package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	// jobsTotal counts finished jobs by outcome (completed, failed, dropped).
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_jobs_total",
			Help: "Total number of reading jobs processed, by outcome.",
		},
		[]string{"outcome"},
	)

	// jobDuration records end-to-end pipeline duration per job in seconds.
	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reading_job_duration_seconds",
			Help:    "Duration of reading jobs from claim to terminal state.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	// queueDepth gauges the in-memory job queue length.
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reading_queue_depth",
			Help: "Current number of jobs waiting in the in-memory queue.",
		},
	)

	// failuresTotal counts pipeline failures by stable failure code.
	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_failures_total",
			Help: "Total number of pipeline failures, by code.",
		},
		[]string{"code"},
	)

	// refundsTotal counts refunds actually issued (no-ops excluded).
	refundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reading_refunds_total",
			Help: "Total number of credit refunds issued for failed readings.",
		},
	)

	// stalledResetsTotal counts stalled jobs returned to the pending queue.
	stalledResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reading_stalled_resets_total",
			Help: "Total number of stalled readings redelivered to pending.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, jobDuration, queueDepth, failuresTotal, refundsTotal, stalledResetsTotal)
}
