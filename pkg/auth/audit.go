package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ppac/pkg/observability"
)

// AuditLogger writes audit events to a dedicated logger
type AuditLogger struct {
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger logrus.FieldLogger) *AuditLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditLogger{
		logger: logger.WithField("audit", true),
		now:    time.Now,
	}
}

// LogAction validates and writes an audit event
func (al *AuditLogger) LogAction(ctx context.Context, log *AuditLog) error {
	if log.Action == "" {
		return fmt.Errorf("action is required")
	}
	if log.ResourceType == "" {
		return fmt.Errorf("resource_type is required")
	}
	if log.Status == "" {
		return fmt.Errorf("status is required")
	}

	log.CreatedAt = al.now()
	if log.RequestID == "" {
		log.RequestID = observability.GetRequestID(ctx)
	}

	entry := al.logger.WithFields(logrus.Fields{
		"action":        log.Action,
		"resource_type": log.ResourceType,
		"status":        log.Status,
		"created_at":    log.CreatedAt,
	})
	if log.ResourceID != "" {
		entry = entry.WithField("resource_id", log.ResourceID)
	}
	if log.RequestID != "" {
		entry = entry.WithField("request_id", log.RequestID)
	}
	if log.IPAddress != "" {
		entry = entry.WithField("ip_address", log.IPAddress)
	}
	if log.UserAgent != "" {
		entry = entry.WithField("user_agent", log.UserAgent)
	}
	if log.ErrorMessage != "" {
		entry = entry.WithField("error", log.ErrorMessage)
	}

	if log.Status == StatusSuccess {
		entry.Info("Audit event")
	} else {
		entry.Warn("Audit event")
	}
	return nil
}

// LogFromRequest creates an audit log from an HTTP request
func (al *AuditLogger) LogFromRequest(r *http.Request, action, resourceType, resourceID, status string, err error) error {
	log := &AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    getClientIP(r),
		UserAgent:    r.UserAgent(),
		Status:       status,
	}

	if err != nil {
		log.ErrorMessage = err.Error()
	}

	return al.LogAction(r.Context(), log)
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy); the first entry is the client
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	// Check X-Real-IP header
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// Use remote address
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
