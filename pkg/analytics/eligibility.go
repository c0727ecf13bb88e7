package analytics

import (
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// SubmissionRateLimit is the minimum spacing between two successful submissions
	SubmissionRateLimit = 23 * time.Hour
	// OnboardingGracePeriod delays the first submission after onboarding
	OnboardingGracePeriod = 24 * time.Hour
	// AppResetGracePeriod delays the first submission after an app reset
	AppResetGracePeriod = 24 * time.Hour
)

// GateInput is everything the eligibility gate looks at
type GateInput struct {
	Now                   time.Time
	Consent               bool
	LastSubmission        *time.Time
	OnboardedDate         *time.Time
	LastAppReset          *time.Time
	SubmissionProbability float64
	Force                 bool
}

// EligibilityGate decides whether a submission attempt may proceed
type EligibilityGate struct {
	draw   func() float64
	logger logrus.FieldLogger
}

// NewEligibilityGate creates a gate. draw must return values in [0,1); nil
// uses math/rand.
func NewEligibilityGate(draw func() float64, logger logrus.FieldLogger) *EligibilityGate {
	if draw == nil {
		draw = rand.Float64
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EligibilityGate{draw: draw, logger: logger}
}

// Check runs the gate checks in order and returns the first skip reason, or nil
func (g *EligibilityGate) Check(in GateInput) error {
	if in.Force {
		g.logger.Info("Forced submission, eligibility checks bypassed")
		return nil
	}

	if !in.Consent {
		g.logger.Info("Analytics submission skipped: consent not given")
		return ErrConsentDenied
	}

	if draw := g.draw(); draw > in.SubmissionProbability {
		g.logger.WithFields(logrus.Fields{
			"draw":        draw,
			"probability": in.SubmissionProbability,
		}).Info("Analytics submission skipped: probability not met")
		return ErrProbabilityNotMet
	}

	if err := g.checkTimestamps(in); err != nil {
		return err
	}
	return nil
}

// MayAttemptSubmission reports whether Check passes
func (g *EligibilityGate) MayAttemptSubmission(in GateInput) bool {
	return g.Check(in) == nil
}

func (g *EligibilityGate) checkTimestamps(in GateInput) error {
	if withinLast(in.LastSubmission, in.Now, SubmissionRateLimit) {
		g.logger.WithField("last_submission", *in.LastSubmission).Info("Analytics submission skipped: rate limited")
		return ErrRateLimited
	}
	if withinLast(in.OnboardedDate, in.Now, OnboardingGracePeriod) {
		g.logger.WithField("onboarded_date", *in.OnboardedDate).Info("Analytics submission skipped: onboarded recently")
		return ErrOnboardedRecently
	}
	if withinLast(in.LastAppReset, in.Now, AppResetGracePeriod) {
		g.logger.WithField("last_app_reset", *in.LastAppReset).Info("Analytics submission skipped: app reset recently")
		return ErrAppResetRecently
	}
	return nil
}

// blockers lists the deterministic checks that currently fail, skipping the random draw
func blockers(in GateInput) []error {
	var errs []error
	if !in.Consent {
		errs = append(errs, ErrConsentDenied)
	}
	if withinLast(in.LastSubmission, in.Now, SubmissionRateLimit) {
		errs = append(errs, ErrRateLimited)
	}
	if withinLast(in.OnboardedDate, in.Now, OnboardingGracePeriod) {
		errs = append(errs, ErrOnboardedRecently)
	}
	if withinLast(in.LastAppReset, in.Now, AppResetGracePeriod) {
		errs = append(errs, ErrAppResetRecently)
	}
	return errs
}

// withinLast reports whether t lies in [now-window, now]
func withinLast(t *time.Time, now time.Time, window time.Duration) bool {
	if t == nil {
		return false
	}
	return !t.Before(now.Add(-window)) && !t.After(now)
}
