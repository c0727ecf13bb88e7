package api

import (
	"encoding/json"
	"time"
)

// EventRequest is the body of POST /api/v1/analytics/events
type EventRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event outcomes
const (
	EventApplied = "applied"
	EventSkipped = "skipped"
	EventPartial = "partial"
)

// EventResponse reports what happened to a logged event
type EventResponse struct {
	Status   string `json:"status"`
	Category string `json:"category"`
	Reason   string `json:"reason,omitempty"`
}

// ConsentRequest is the body of PUT /api/v1/analytics/consent
type ConsentRequest struct {
	Given *bool `json:"given"`
}

// ConsentResponse echoes the stored consent
type ConsentResponse struct {
	Consent bool `json:"consent"`
}

// TimestampRequest is the body of the onboarding and app reset endpoints.
// A missing timestamp means now.
type TimestampRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// TimestampResponse echoes the recorded timestamp
type TimestampResponse struct {
	At time.Time `json:"at"`
}
