package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusAccepted, map[string]string{"state": "submitted"}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"state":"submitted"}`, rec.Body.String())
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		code  int
		body  string
	}{
		{
			name:  "error",
			write: func(w http.ResponseWriter) { WriteError(w, http.StatusConflict, errors.New("busy")) },
			code:  http.StatusConflict,
			body:  `{"error":"busy"}`,
		},
		{
			name:  "bad request",
			write: func(w http.ResponseWriter) { WriteBadRequest(w, "bad") },
			code:  http.StatusBadRequest,
			body:  `{"error":"bad"}`,
		},
		{
			name:  "internal",
			write: func(w http.ResponseWriter) { WriteInternalError(w, errors.New("db down")) },
			code:  http.StatusInternalServerError,
			body:  `{"error":"db down"}`,
		},
		{
			name:  "unavailable",
			write: func(w http.ResponseWriter) { WriteServiceUnavailable(w, "closed") },
			code:  http.StatusServiceUnavailable,
			body:  `{"error":"closed"}`,
		},
		{
			name: "detailed",
			write: func(w http.ResponseWriter) {
				WriteDetailedError(w, http.StatusBadRequest, "skipped", map[string]string{"reason": "missing precondition"})
			},
			code: http.StatusBadRequest,
			body: `{"error":"skipped","details":{"reason":"missing precondition"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestWriteSuccessAndNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, struct {
		OK bool `json:"ok"`
	}{OK: true}))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["ok"])

	rec = httptest.NewRecorder()
	WriteNoContent(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
