// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_jobs_total",
			Help: "Total number of jobs processed, labeled by terminal status.",
		},
		[]string{"status"},
	)

	scraperRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Total number of records persisted, labeled by source.",
		},
		[]string{"source"},
	)

	scraperRecordSaveFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_record_save_failures_total",
			Help: "Total record persistence failures, labeled by source.",
		},
		[]string{"source"},
	)

	scraperNavigationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_navigation_attempts_total",
			Help: "Total navigation candidate attempts, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	scraperActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_active_workers",
			Help: "Number of workers currently processing a job.",
		},
	)

	scraperJobProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scraper_job_progress_percent",
			Help: "Last reported progress percentage per job.",
		},
		[]string{"job_id"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProgress records the latest progress percentage for a job.
func ObserveProgress(jobID string, percent int) {
	scraperJobProgress.WithLabelValues(jobID).Set(float64(percent))
}

// ObserveJobDone counts a finished job and clears its progress gauge.
func ObserveJobDone(jobID, status string) {
	scraperJobsTotal.WithLabelValues(status).Inc()
	scraperJobProgress.DeleteLabelValues(jobID)
}

// ObserveRecordSaved increments the persisted-record counter for a source.
func ObserveRecordSaved(source string) {
	scraperRecordsTotal.WithLabelValues(source).Inc()
}

// ObserveRecordSaveFailure increments the save-failure counter for a source.
func ObserveRecordSaveFailure(source string) {
	scraperRecordSaveFailures.WithLabelValues(source).Inc()
}

// ObserveNavigation counts a navigation candidate attempt.
func ObserveNavigation(source, outcome string) {
	scraperNavigationAttempts.WithLabelValues(source, outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	scraperActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
