// Package api serves the agent's local HTTP surface.
//
// Embedding applications that cannot link the analytics package directly run
// the agent as a sidecar and talk to it over HTTP:
//
//	POST   /api/v1/analytics/events          {"type": "riskCalculation", "data": {...}}
//	POST   /api/v1/analytics/submissions     ?force=true for a diagnostic submission
//	GET    /api/v1/analytics/status
//	PUT    /api/v1/analytics/consent         {"given": true}
//	PUT    /api/v1/analytics/onboarding      {"at": "2024-01-02T15:04:05Z"}
//	POST   /api/v1/analytics/app-reset       {"at": "..."}
//	DELETE /api/v1/analytics
//
// Consent changes, data resets and forced submissions are written to the
// audit log. /healthz, /readyz and /metrics are served when a health checker
// and a Prometheus gatherer are configured.
package api
