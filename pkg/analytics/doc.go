// Package analytics buffers privacy-preserving usage analytics locally and
// submits them in aggregated form.
//
// # Overview
//
// Application events are merged into one durable record per category
// (user, risk exposure, client, test result, key submission, exposure
// windows). Each merge either applies, or is skipped with an error that
// IsMergeSkipped recognizes; a skipped merge never fails the caller.
//
// A submission attempt runs a fixed sequence of stages:
//
//	idle → configFetched → gateChecked → tokenAcquired → payloadAssembled → submitted
//
// The eligibility gate checks, in order: consent, a random draw against the
// configured submission probability, the 23 hour rate limit, and the 24 hour
// grace periods after onboarding and after an app reset. Gate declines are
// skips (IsSkip), not failures. Only a successful transport call changes
// stored state: the current risk exposure becomes the previous one, the
// payload and timestamp are recorded, and submitted exposure windows leave
// the new-windows queue.
//
// Exposure windows are deduplicated by content hash against the windows
// reported in the last 15 days.
//
// # Usage
//
//	svc, err := analytics.NewService(analytics.Dependencies{
//		KV:        kv,
//		Config:    configProvider,
//		Tokens:    tokenProvider,
//		Transport: transport,
//		Logger:    logger,
//	})
//
//	err = svc.Log(ctx, analytics.RiskCalculationUpdate{Result: result})
//	if analytics.IsMergeSkipped(err) {
//		// not applied, nothing to do
//	}
//
//	report, err := svc.TriggerSubmission(ctx, false)
//
// Log triggers a background submission after every event; concurrent
// triggers share one attempt.
//
// # Related Packages
//
//   - pkg/storage: KV backends for the metadata store
//   - pkg/appconfig: ConfigurationProvider implementations
//   - pkg/auth: TokenProvider implementations
//   - pkg/transport: HTTP Transport
package analytics
