package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/ppac/pkg/analytics"
	"github.com/platinummonkey/ppac/pkg/auth"
	"github.com/platinummonkey/ppac/pkg/httputil"
	"github.com/platinummonkey/ppac/pkg/observability"
)

const resourceAnalytics = "analytics"

var errForcedLimit = errors.New("forced submission limit reached")

// logEvent handles POST /api/v1/analytics/events
func (s *Server) logEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Type == "" {
		httputil.WriteBadRequest(w, "type is required")
		return
	}

	event, err := analytics.ParseEvent(req.Type, req.Data)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	resp := EventResponse{Status: EventApplied, Category: string(event.Category())}
	err = s.service.Log(r.Context(), event)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusAccepted, resp)
	case analytics.IsMergeSkipped(err):
		resp.Status = EventSkipped
		resp.Reason = err.Error()
		httputil.WriteSuccess(w, resp)
	case errors.Is(err, analytics.ErrEncodingFailed):
		// The rest of the batch was stored
		resp.Status = EventPartial
		resp.Reason = err.Error()
		httputil.WriteJSON(w, http.StatusAccepted, resp)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Failed to log analytics event")
		httputil.WriteInternalError(w, fmt.Errorf("failed to log event"))
	}
}

// triggerSubmission handles POST /api/v1/analytics/submissions?force=
// A skipped attempt is a 200 with skipped=true; a failed one is a 502
// carrying the report.
func (s *Server) triggerSubmission(w http.ResponseWriter, r *http.Request) {
	force, ok := httputil.ParseQueryBoolOrError(w, r, "force", false)
	if !ok {
		return
	}
	if force && s.forced != nil && !s.forced.Allow("forced") {
		s.logAudit(r, auth.ActionSubmissionForced, "", errForcedLimit)
		httputil.WriteErrorMessage(w, http.StatusTooManyRequests, errForcedLimit.Error())
		return
	}

	report, err := s.service.TriggerSubmission(r.Context(), force)
	if force {
		s.logAudit(r, auth.ActionSubmissionForced, attemptID(report), err)
	}

	switch {
	case report == nil:
		// The caller went away before the shared attempt finished
		httputil.WriteErrorMessage(w, http.StatusGatewayTimeout, "submission did not finish")
	case err == nil, analytics.IsSkip(err):
		httputil.WriteSuccess(w, report)
	default:
		httputil.WriteJSON(w, http.StatusBadGateway, report)
	}
}

func attemptID(report *analytics.SubmissionReport) string {
	if report == nil {
		return ""
	}
	return report.AttemptID
}

// getStatus handles GET /api/v1/analytics/status
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to read analytics status")
		httputil.WriteInternalError(w, fmt.Errorf("failed to read status"))
		return
	}
	httputil.WriteSuccess(w, status)
}

// setConsent handles PUT /api/v1/analytics/consent
func (s *Server) setConsent(w http.ResponseWriter, r *http.Request) {
	var req ConsentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Given == nil {
		httputil.WriteBadRequest(w, "given is required")
		return
	}

	action := auth.ActionConsentRevoke
	if *req.Given {
		action = auth.ActionConsentGrant
	}

	err := s.service.SetConsent(r.Context(), *req.Given)
	s.logAudit(r, action, "", err)
	if err != nil {
		httputil.WriteInternalError(w, fmt.Errorf("failed to store consent"))
		return
	}
	httputil.WriteSuccess(w, ConsentResponse{Consent: *req.Given})
}

// recordOnboarding handles PUT /api/v1/analytics/onboarding
func (s *Server) recordOnboarding(w http.ResponseWriter, r *http.Request) {
	s.recordTimestamp(w, r, s.service.RecordOnboarding)
}

// recordAppReset handles POST /api/v1/analytics/app-reset
func (s *Server) recordAppReset(w http.ResponseWriter, r *http.Request) {
	s.recordTimestamp(w, r, s.service.RecordAppReset)
}

func (s *Server) recordTimestamp(w http.ResponseWriter, r *http.Request, record func(ctx context.Context, at time.Time) error) {
	var req TimestampRequest
	if err := httputil.ParseJSON(r, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	at := s.now()
	if req.At != nil {
		at = *req.At
	}
	if err := record(r.Context(), at); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to record timestamp")
		httputil.WriteInternalError(w, fmt.Errorf("failed to record timestamp"))
		return
	}
	httputil.WriteSuccess(w, TimestampResponse{At: at})
}

// resetAnalytics handles DELETE /api/v1/analytics
func (s *Server) resetAnalytics(w http.ResponseWriter, r *http.Request) {
	err := s.service.Reset(r.Context())
	s.logAudit(r, auth.ActionDataReset, "", err)
	if err != nil {
		httputil.WriteInternalError(w, fmt.Errorf("failed to reset analytics data"))
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) logAudit(r *http.Request, action, resourceID string, err error) {
	status := auth.StatusSuccess
	if err != nil && !analytics.IsSkip(err) {
		status = auth.StatusFailure
	}
	if auditErr := s.audit.LogFromRequest(r, action, resourceAnalytics, resourceID, status, err); auditErr != nil {
		s.logger.WithError(auditErr).Warn("Failed to write audit log")
	}
}
