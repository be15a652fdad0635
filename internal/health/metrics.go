// Package health exposes the worker's liveness and Prometheus metrics
// surface over HTTP.
package health

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the counters and gauges the executor pool reports into,
// exported on /metrics.
type Metrics struct {
	jobsTotal   *prometheus.CounterVec
	jobDuration prometheus.Histogram
	queueDepth  prometheus.Gauge
	registry    *prometheus.Registry
}

// NewMetrics builds a Metrics with its own registry, so repeated calls in
// tests don't collide with the global default registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ezworker_jobs_total",
			Help: "Total jobs executed, labeled by outcome and error kind.",
		}, []string{"outcome", "error_kind"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ezworker_job_duration_seconds",
			Help:    "Job execution duration in seconds, from just before the HTTP call to just after.",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ezworker_queue_depth",
			Help: "Current number of jobs waiting in the job queue.",
		}),
		registry: registry,
	}

	registry.MustRegister(m.jobsTotal, m.jobDuration, m.queueDepth)
	return m
}

// ObserveJob records the outcome of one executed job.
func (m *Metrics) ObserveJob(success bool, errorKind string, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.jobsTotal.WithLabelValues(outcome, errorKind).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

// SetQueueDepth records the current queue length.
func (m *Metrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// Handler returns the /metrics HTTP handler for this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
