package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Submission metrics
	SubmissionAttemptsTotal  *prometheus.CounterVec
	SubmissionDuration       *prometheus.HistogramVec
	LastSuccessfulSubmission prometheus.Gauge

	// Merge metrics
	MergesTotal *prometheus.CounterVec

	// Exposure window metrics
	ExposureWindowsTotal   *prometheus.CounterVec
	PendingExposureWindows prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppac_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ppac_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SubmissionAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppac_submission_attempts_total",
				Help: "Total number of analytics submission attempts by outcome",
			},
			[]string{"outcome", "reason"},
		),
		SubmissionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ppac_submission_duration_seconds",
				Help:    "Analytics submission attempt duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		LastSuccessfulSubmission: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ppac_last_successful_submission_timestamp_seconds",
				Help: "Unix time of the last successful analytics submission",
			},
		),

		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppac_merges_total",
				Help: "Total number of logged events by category and merge outcome",
			},
			[]string{"category", "outcome"},
		),

		ExposureWindowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppac_exposure_windows_total",
				Help: "Exposure windows seen by the deduplicator by result",
			},
			[]string{"result"},
		),
		PendingExposureWindows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ppac_pending_exposure_windows",
				Help: "Exposure windows waiting for their first submission",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SubmissionAttemptsTotal,
		m.SubmissionDuration,
		m.LastSuccessfulSubmission,
		m.MergesTotal,
		m.ExposureWindowsTotal,
		m.PendingExposureWindows,
	)

	return m
}

// RecordSubmission counts one submission attempt. Safe on a nil receiver.
func (m *Metrics) RecordSubmission(outcome, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SubmissionAttemptsTotal.WithLabelValues(outcome, reason).Inc()
	m.SubmissionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome == "success" {
		m.LastSuccessfulSubmission.SetToCurrentTime()
	}
}

// RecordMerge counts one logged event. Safe on a nil receiver.
func (m *Metrics) RecordMerge(category, outcome string) {
	if m == nil {
		return
	}
	m.MergesTotal.WithLabelValues(category, outcome).Inc()
}

// RecordExposureWindows records one deduplication pass. Safe on a nil receiver.
func (m *Metrics) RecordExposureWindows(added, duplicates, purged, unhashed, pending int) {
	if m == nil {
		return
	}
	m.ExposureWindowsTotal.WithLabelValues("added").Add(float64(added))
	m.ExposureWindowsTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	m.ExposureWindowsTotal.WithLabelValues("purged").Add(float64(purged))
	m.ExposureWindowsTotal.WithLabelValues("unhashed").Add(float64(unhashed))
	m.PendingExposureWindows.Set(float64(pending))
}

// SetPendingExposureWindows updates the pending window gauge. Safe on a nil receiver.
func (m *Metrics) SetPendingExposureWindows(pending int) {
	if m == nil {
		return
	}
	m.PendingExposureWindows.Set(float64(pending))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
