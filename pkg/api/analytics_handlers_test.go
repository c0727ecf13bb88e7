package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ppac/pkg/analytics"
	"github.com/platinummonkey/ppac/pkg/auth"
	"github.com/platinummonkey/ppac/pkg/observability"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// mockService records calls and returns canned results
type mockService struct {
	mu sync.Mutex

	logged    []analytics.Event
	logErr    error
	report    *analytics.SubmissionReport
	submitErr error
	forced    []bool
	status    *analytics.Status
	statusErr error
	consent   *bool
	onboarded time.Time
	appReset  time.Time
	resets    int
	resetErr  error
}

func (m *mockService) Log(ctx context.Context, event analytics.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logged = append(m.logged, event)
	return m.logErr
}

func (m *mockService) TriggerSubmission(ctx context.Context, force bool) (*analytics.SubmissionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = append(m.forced, force)
	return m.report, m.submitErr
}

func (m *mockService) Status(ctx context.Context) (*analytics.Status, error) {
	return m.status, m.statusErr
}

func (m *mockService) SetConsent(ctx context.Context, given bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consent = &given
	return nil
}

func (m *mockService) RecordOnboarding(ctx context.Context, at time.Time) error {
	m.onboarded = at
	return nil
}

func (m *mockService) RecordAppReset(ctx context.Context, at time.Time) error {
	m.appReset = at
	return nil
}

func (m *mockService) Reset(ctx context.Context) error {
	m.resets++
	return m.resetErr
}

type testServer struct {
	*Server
	service  *mockService
	auditLog *bytes.Buffer
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var auditBuf bytes.Buffer
	auditLogger := logrus.New()
	auditLogger.SetOutput(&auditBuf)
	auditLogger.SetFormatter(&logrus.JSONFormatter{})

	opts.Logger = logger
	opts.Audit = auth.NewAuditLogger(auditLogger)
	opts.Now = func() time.Time { return fixedNow }

	svc := &mockService{}
	return &testServer{Server: NewServer(svc, opts), service: svc, auditLog: &auditBuf}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) auditEntries(t *testing.T) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	dec := json.NewDecoder(ts.auditLog)
	for dec.More() {
		var entry map[string]interface{}
		require.NoError(t, dec.Decode(&entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestServer_RoutesRegistered(t *testing.T) {
	ts := newTestServer(t, Options{
		Health:   observability.NewHealthChecker("test"),
		Gatherer: prometheus.NewRegistry(),
	})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/analytics/events"},
		{http.MethodPost, "/api/v1/analytics/submissions"},
		{http.MethodGet, "/api/v1/analytics/status"},
		{http.MethodPut, "/api/v1/analytics/consent"},
		{http.MethodPut, "/api/v1/analytics/onboarding"},
		{http.MethodPost, "/api/v1/analytics/app-reset"},
		{http.MethodDelete, "/api/v1/analytics"},
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/readyz"},
		{http.MethodGet, "/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			assert.True(t, ts.Router().Match(req, &match), "Route %s %s should be registered", tt.method, tt.path)
		})
	}
}

func TestServer_OptionalRoutesAbsent(t *testing.T) {
	ts := newTestServer(t, Options{})
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/metrics", "").Code)
}

func TestLogEvent(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		logErr     error
		wantCode   int
		wantStatus string
	}{
		{
			name:       "applied",
			body:       `{"type":"keySubmissionFlag","data":{"flag":"submitted","value":true}}`,
			wantCode:   http.StatusAccepted,
			wantStatus: EventApplied,
		},
		{
			name:       "skipped",
			body:       `{"type":"keySubmissionFlag","data":{"flag":"submitted","value":true}}`,
			logErr:     fmt.Errorf("%w: no key submission record", analytics.ErrMissingPrecondition),
			wantCode:   http.StatusOK,
			wantStatus: EventSkipped,
		},
		{
			name:       "partially applied",
			body:       `{"type":"exposureWindowsObserved","data":{}}`,
			logErr:     fmt.Errorf("%w: window hash", analytics.ErrEncodingFailed),
			wantCode:   http.StatusAccepted,
			wantStatus: EventPartial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{})
			ts.service.logErr = tt.logErr

			rec := ts.do(http.MethodPost, "/api/v1/analytics/events", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			var resp EventResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.NotEmpty(t, resp.Category)
			assert.Len(t, ts.service.logged, 1)
		})
	}
}

func TestLogEvent_DecodesEvent(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(http.MethodPost, "/api/v1/analytics/events", `{"type":"keySubmissionFlag","data":{"flag":"submitted","value":true}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, ts.service.logged, 1)
	assert.Equal(t, analytics.CategoryKeySubmission, ts.service.logged[0].Category())
}

func TestLogEvent_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{"type":`},
		{"missing type", `{"data":{}}`},
		{"unknown type", `{"type":"nope","data":{}}`},
		{"invalid data", `{"type":"keySubmissionFlag","data":[1,2]}`},
		{"unknown field", `{"type":"keySubmissionFlag","extra":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{})
			rec := ts.do(http.MethodPost, "/api/v1/analytics/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, ts.service.logged)
		})
	}
}

func TestLogEvent_StorageFailure(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.service.logErr = errors.New("disk full")

	rec := ts.do(http.MethodPost, "/api/v1/analytics/events", `{"type":"keySubmissionFlag","data":{}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestLogEvent_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, Options{MaxBodyBytes: 16})
	rec := ts.do(http.MethodPost, "/api/v1/analytics/events", `{"type":"keySubmissionFlag","data":{"flag":"submitted","value":true}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestTriggerSubmission(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		report    *analytics.SubmissionReport
		err       error
		wantCode  int
		wantForce bool
	}{
		{
			name:     "submitted",
			report:   &analytics.SubmissionReport{AttemptID: "a1", State: analytics.StateSubmitted, Success: true},
			wantCode: http.StatusOK,
		},
		{
			name:     "skipped by the gate",
			report:   &analytics.SubmissionReport{AttemptID: "a2", State: analytics.StateConfigFetched, Skipped: true},
			err:      analytics.ErrRateLimited,
			wantCode: http.StatusOK,
		},
		{
			name:     "transport failure",
			report:   &analytics.SubmissionReport{AttemptID: "a3", State: analytics.StatePayloadAssembled},
			err:      analytics.ErrTransportFailed,
			wantCode: http.StatusBadGateway,
		},
		{
			name:     "caller gave up",
			err:      context.Canceled,
			wantCode: http.StatusGatewayTimeout,
		},
		{
			name:      "forced",
			query:     "?force=true",
			report:    &analytics.SubmissionReport{AttemptID: "a4", Forced: true, State: analytics.StateSubmitted, Success: true},
			wantCode:  http.StatusOK,
			wantForce: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{})
			ts.service.report = tt.report
			ts.service.submitErr = tt.err

			rec := ts.do(http.MethodPost, "/api/v1/analytics/submissions"+tt.query, "")
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, []bool{tt.wantForce}, ts.service.forced)

			if tt.report != nil {
				var got analytics.SubmissionReport
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, tt.report.AttemptID, got.AttemptID)
				assert.Equal(t, tt.report.State, got.State)
			}
		})
	}
}

func TestTriggerSubmission_ForcedIsAudited(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.service.report = &analytics.SubmissionReport{AttemptID: "attempt-9", Forced: true, Success: true}

	ts.do(http.MethodPost, "/api/v1/analytics/submissions?force=true", "")
	entries := ts.auditEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, auth.ActionSubmissionForced, entries[0]["action"])
	assert.Equal(t, "attempt-9", entries[0]["resource_id"])
	assert.Equal(t, auth.StatusSuccess, entries[0]["status"])

	ts = newTestServer(t, Options{})
	ts.service.report = &analytics.SubmissionReport{AttemptID: "a"}
	ts.do(http.MethodPost, "/api/v1/analytics/submissions", "")
	assert.Empty(t, ts.auditEntries(t), "regular submissions are not audited")
}

func TestTriggerSubmission_InvalidForce(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(http.MethodPost, "/api/v1/analytics/submissions?force=sometimes", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.service.forced)
}

func TestGetStatus(t *testing.T) {
	ts := newTestServer(t, Options{})
	last := fixedNow.Add(-time.Hour)
	ts.service.status = &analytics.Status{
		Consent:                true,
		LastSubmission:         &last,
		Blockers:               []string{analytics.ErrRateLimited.Error()},
		PendingExposureWindows: 3,
	}

	rec := ts.do(http.MethodGet, "/api/v1/analytics/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got analytics.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Consent)
	assert.Equal(t, 3, got.PendingExposureWindows)
	assert.Equal(t, []string{analytics.ErrRateLimited.Error()}, got.Blockers)
	require.NotNil(t, got.LastSubmission)
	assert.True(t, last.Equal(*got.LastSubmission))

	ts.service.statusErr = errors.New("redis down")
	assert.Equal(t, http.StatusInternalServerError, ts.do(http.MethodGet, "/api/v1/analytics/status", "").Code)
}

func TestSetConsent(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodPut, "/api/v1/analytics/consent", `{"given":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"consent":true}`, rec.Body.String())
	require.NotNil(t, ts.service.consent)
	assert.True(t, *ts.service.consent)

	rec = ts.do(http.MethodPut, "/api/v1/analytics/consent", `{"given":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, *ts.service.consent)

	entries := ts.auditEntries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, auth.ActionConsentGrant, entries[0]["action"])
	assert.Equal(t, auth.ActionConsentRevoke, entries[1]["action"])
	assert.NotEmpty(t, entries[0]["request_id"])
}

func TestSetConsent_RequiresGiven(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(http.MethodPut, "/api/v1/analytics/consent", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, ts.service.consent)
}

func TestSetConsent_RejectsNonJSON(t *testing.T) {
	ts := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/analytics/consent", strings.NewReader("given=true"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRecordTimestamps(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodPut, "/api/v1/analytics/onboarding", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, fixedNow, ts.service.onboarded)

	at := fixedNow.Add(-48 * time.Hour)
	rec = ts.do(http.MethodPost, "/api/v1/analytics/app-reset", `{"at":"`+at.Format(time.RFC3339)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, at.Equal(ts.service.appReset))

	rec = ts.do(http.MethodPost, "/api/v1/analytics/app-reset", `{"at":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetAnalytics(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodDelete, "/api/v1/analytics", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, ts.service.resets)

	ts.service.resetErr = errors.New("delete failed")
	rec = ts.do(http.MethodDelete, "/api/v1/analytics", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := ts.auditEntries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, auth.ActionDataReset, entries[0]["action"])
	assert.Equal(t, auth.StatusSuccess, entries[0]["status"])
	assert.Equal(t, auth.StatusFailure, entries[1]["status"])
	assert.Equal(t, "delete failed", entries[1]["error"])
}

func TestServer_RequestIDHeader(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.service.status = &analytics.Status{Blockers: []string{}}

	rec := ts.do(http.MethodGet, "/api/v1/analytics/status", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_MetricsAndHealth(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	health := observability.NewHealthChecker("test")
	health.Register("kv", true, func(ctx context.Context) error { return nil })

	ts := newTestServer(t, Options{Metrics: metrics, Gatherer: registry, Health: health})
	ts.service.status = &analytics.Status{Blockers: []string{}}

	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/analytics/status", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/readyz", "").Code)

	rec := ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/analytics/status")
}

func TestTriggerSubmission_ForcedLimit(t *testing.T) {
	ts := newTestServer(t, Options{ForcedSubmissionLimit: 1})
	ts.service.report = &analytics.SubmissionReport{AttemptID: "a", Forced: true, Success: true}

	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/v1/analytics/submissions?force=true", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodPost, "/api/v1/analytics/submissions?force=true", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/v1/analytics/submissions", "").Code, "regular submissions are not limited")
	assert.Equal(t, []bool{true, false}, ts.service.forced)

	entries := ts.auditEntries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, auth.StatusFailure, entries[1]["status"])
}
