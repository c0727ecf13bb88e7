package analytics

import "errors"

// Skip reasons returned by the eligibility gate. A skip is a deliberate
// decision not to submit, never a failure.
var (
	ErrConsentDenied     = errors.New("analytics: consent not given")
	ErrProbabilityNotMet = errors.New("analytics: submission probability not met")
	ErrRateLimited       = errors.New("analytics: submitted within the last 23 hours")
	ErrOnboardedRecently = errors.New("analytics: onboarded within the last 24 hours")
	ErrAppResetRecently  = errors.New("analytics: app reset within the last 24 hours")
)

// Failure classes. Each aborts the current attempt or merge only.
var (
	ErrConfigUnavailable    = errors.New("analytics: configuration unavailable")
	ErrAuthenticationFailed = errors.New("analytics: authentication failed")
	ErrTransportFailed      = errors.New("analytics: transport failed")
	ErrEncodingFailed       = errors.New("analytics: encoding failed")
	ErrMissingPrecondition  = errors.New("analytics: missing precondition")
	ErrNotApplicable        = errors.New("analytics: update not applicable")
)

// IsSkip reports whether err is a gate decision rather than a failure
func IsSkip(err error) bool {
	return errors.Is(err, ErrConsentDenied) ||
		errors.Is(err, ErrProbabilityNotMet) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrOnboardedRecently) ||
		errors.Is(err, ErrAppResetRecently)
}

// IsMergeSkipped reports whether a merge left the stored record untouched
// on purpose: required context was missing or the update did not apply
func IsMergeSkipped(err error) bool {
	return errors.Is(err, ErrMissingPrecondition) || errors.Is(err, ErrNotApplicable)
}
