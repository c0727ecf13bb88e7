package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Check(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		register   func(h *HealthChecker)
		wantStatus string
	}{
		{
			name:       "no checks",
			register:   func(h *HealthChecker) {},
			wantStatus: StatusHealthy,
		},
		{
			name: "all healthy",
			register: func(h *HealthChecker) {
				h.Register("storage", true, ok)
				h.Register("appconfig", false, ok)
			},
			wantStatus: StatusHealthy,
		},
		{
			name: "optional dependency down",
			register: func(h *HealthChecker) {
				h.Register("storage", true, ok)
				h.Register("appconfig", false, fail)
			},
			wantStatus: StatusDegraded,
		},
		{
			name: "critical dependency down",
			register: func(h *HealthChecker) {
				h.Register("storage", true, fail)
				h.Register("appconfig", false, fail)
			},
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker("1.2.3")
			tt.register(checker)

			status := checker.Check(context.Background())
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, "1.2.3", status.Version)
		})
	}
}

func TestHealthChecker_DependencyMessage(t *testing.T) {
	checker := NewHealthChecker("")
	checker.Register("storage", true, func(context.Context) error { return errors.New("disk full") })

	status := checker.Check(context.Background())
	require.Contains(t, status.Dependencies, "storage")
	assert.Equal(t, StatusUnhealthy, status.Dependencies["storage"].Status)
	assert.Equal(t, "disk full", status.Dependencies["storage"].Message)
}

func TestHealthChecker_Handlers(t *testing.T) {
	t.Run("liveness always ok", func(t *testing.T) {
		checker := NewHealthChecker("")
		checker.Register("storage", true, func(context.Context) error { return errors.New("down") })

		rec := httptest.NewRecorder()
		checker.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readiness unavailable when unhealthy", func(t *testing.T) {
		checker := NewHealthChecker("")
		checker.Register("storage", true, func(context.Context) error { return errors.New("down") })

		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, StatusUnhealthy, status.Status)
	})

	t.Run("readiness ok when degraded", func(t *testing.T) {
		checker := NewHealthChecker("")
		checker.Register("appconfig", false, func(context.Context) error { return errors.New("stale") })

		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
