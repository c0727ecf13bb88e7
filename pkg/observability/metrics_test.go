package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	assert.NotNil(t, metrics.HTTPRequestsTotal)
	assert.NotNil(t, metrics.SubmissionAttemptsTotal)
	assert.NotNil(t, metrics.MergesTotal)
	assert.NotNil(t, metrics.ExposureWindowsTotal)

	assert.Panics(t, func() { NewMetrics(registry) }, "registering twice must fail")
}

func TestMetrics_RecordSubmission(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordSubmission("skipped", "consent", 10*time.Millisecond)
	metrics.RecordSubmission("success", "", 20*time.Millisecond)
	metrics.RecordSubmission("success", "", 20*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SubmissionAttemptsTotal.WithLabelValues("skipped", "consent")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SubmissionAttemptsTotal.WithLabelValues("success", "")))
	assert.Greater(t, testutil.ToFloat64(metrics.LastSuccessfulSubmission), float64(0))
}

func TestMetrics_RecordMergeAndWindows(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordMerge("testResultMetadata", "applied")
	metrics.RecordMerge("testResultMetadata", "skipped")
	metrics.RecordMerge("testResultMetadata", "skipped")
	metrics.RecordExposureWindows(3, 1, 2, 0, 5)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.MergesTotal.WithLabelValues("testResultMetadata", "skipped")))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.ExposureWindowsTotal.WithLabelValues("added")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ExposureWindowsTotal.WithLabelValues("purged")))
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.PendingExposureWindows))

	metrics.SetPendingExposureWindows(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.PendingExposureWindows))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.RecordSubmission("success", "", time.Second)
		metrics.RecordMerge("userMetadata", "applied")
		metrics.RecordExposureWindows(1, 1, 1, 1, 1)
		metrics.SetPendingExposureWindows(1)
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/analytics/events", "202")))
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordMerge("userMetadata", "applied")

	server := httptest.NewServer(MetricsHandler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "ppac_merges_total"))
}
