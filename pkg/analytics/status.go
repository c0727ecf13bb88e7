package analytics

import (
	"context"
	"time"
)

// Status summarizes the stored analytics state for diagnostics
type Status struct {
	Consent                  bool              `json:"consent"`
	LastSubmission           *time.Time        `json:"lastSubmission,omitempty"`
	OnboardedDate            *time.Time        `json:"onboardedDate,omitempty"`
	LastAppReset             *time.Time        `json:"lastAppReset,omitempty"`
	NextEligibleAt           *time.Time        `json:"nextEligibleAt,omitempty"`
	Blockers                 []string          `json:"blockers"`
	PendingExposureWindows   int               `json:"pendingExposureWindows"`
	ReportedExposureWindows  int               `json:"reportedExposureWindows"`
	HasRiskExposureMetadata  bool              `json:"hasRiskExposureMetadata"`
	HasTestResultMetadata    bool              `json:"hasTestResultMetadata"`
	HasKeySubmissionMetadata bool              `json:"hasKeySubmissionMetadata"`
	LastSubmittedPayload     *SubmittedPayload `json:"lastSubmittedPayload,omitempty"`
}

// Status reports consent, timestamps, queue sizes and the gate checks that
// currently block a submission. The random draw is not evaluated.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	status := &Status{
		Consent:                  snap.Consent,
		LastSubmission:           snap.LastSubmission,
		OnboardedDate:            snap.OnboardedDate,
		LastAppReset:             snap.LastAppReset,
		Blockers:                 []string{},
		HasRiskExposureMetadata:  snap.CurrentRiskExposure != nil,
		HasTestResultMetadata:    snap.TestResult != nil,
		HasKeySubmissionMetadata: snap.KeySubmission != nil,
		LastSubmittedPayload:     snap.LastSubmittedPayload,
	}
	if snap.ExposureWindows != nil {
		status.PendingExposureWindows = len(snap.ExposureWindows.NewExposureWindowsQueue)
		status.ReportedExposureWindows = len(snap.ExposureWindows.ReportedExposureWindowsQueue)
	}

	in := GateInput{
		Now:            now,
		Consent:        snap.Consent,
		LastSubmission: snap.LastSubmission,
		OnboardedDate:  snap.OnboardedDate,
		LastAppReset:   snap.LastAppReset,
	}
	for _, err := range blockers(in) {
		status.Blockers = append(status.Blockers, err.Error())
	}
	if snap.Consent {
		status.NextEligibleAt = nextEligibleAt(in)
	}
	return status, nil
}

// nextEligibleAt is the earliest time every timestamp check passes
func nextEligibleAt(in GateInput) *time.Time {
	next := in.Now
	for _, c := range []struct {
		at     *time.Time
		window time.Duration
	}{
		{in.LastSubmission, SubmissionRateLimit},
		{in.OnboardedDate, OnboardingGracePeriod},
		{in.LastAppReset, AppResetGracePeriod},
	} {
		if !withinLast(c.at, in.Now, c.window) {
			continue
		}
		// The window is inclusive, so the first passing instant is just past it
		if end := c.at.Add(c.window + time.Nanosecond); end.After(next) {
			next = end
		}
	}
	return &next
}
