package auth

import "time"

// AuditLog is a record of a privacy relevant action on the agent
type AuditLog struct {
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Audit actions
const (
	ActionConsentGrant     = "consent.grant"
	ActionConsentRevoke    = "consent.revoke"
	ActionDataReset        = "data.reset"
	ActionSubmissionForced = "submission.forced"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)
