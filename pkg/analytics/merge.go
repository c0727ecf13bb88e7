package analytics

import (
	"fmt"
	"time"
)

// MergeContext carries the values a merge needs besides the stored record
type MergeContext struct {
	Now     time.Time
	Context *SubmissionContext
}

// MergeRiskExposure derives the next current risk exposure record. Change
// flags compare against previous, the record taken at the last successful
// submission; with no previous record both flags are false.
func MergeRiskExposure(previous *RiskExposureMetadata, event RiskExposureEvent) (*RiskExposureMetadata, error) {
	switch e := event.(type) {
	case RiskExposureComplete:
		next := e.Metadata
		return &next, nil

	case RiskExposureUpdate:
		calc := e.RiskCalculation
		next := &RiskExposureMetadata{RiskLevel: calc.RiskLevel}
		if calc.MostRecentDateAtRiskLevel != nil {
			next.MostRecentDateAtRiskLevel = timePtr(*calc.MostRecentDateAtRiskLevel)
		}
		if previous != nil {
			next.RiskLevelChangedComparedToPreviousSubmission = previous.RiskLevel != next.RiskLevel
			next.DateChangedComparedToPreviousSubmission = !sameInstant(previous.MostRecentDateAtRiskLevel, next.MostRecentDateAtRiskLevel)
		}
		return next, nil
	}
	return nil, fmt.Errorf("%w: unsupported risk exposure event %T", ErrNotApplicable, event)
}

// MergeTestResult applies a test result event to the stored record.
//
// A registration replaces the record and may return both a record and an
// error when the record could only be partially derived. An update applies
// only to the registered token, only when the result changes, and only for
// actionable results.
func MergeTestResult(stored *TestResultMetadata, event TestResultEvent, mc MergeContext) (*TestResultMetadata, error) {
	switch e := event.(type) {
	case TestResultComplete:
		next := e.Metadata
		return &next, nil

	case RegisterNewTestMetadata:
		return registerTest(e, mc.Context)

	case UpdateTestResult:
		if stored == nil || stored.RegistrationToken != e.Token {
			return nil, fmt.Errorf("%w: no test registered for token", ErrMissingPrecondition)
		}
		if stored.TestRegistrationDate == nil {
			return nil, fmt.Errorf("%w: test registration date unknown", ErrMissingPrecondition)
		}
		if stored.TestResult == e.Result {
			return nil, fmt.Errorf("%w: test result unchanged", ErrNotApplicable)
		}
		if !e.Result.actionable() {
			return nil, fmt.Errorf("%w: test result %q is not tracked", ErrNotApplicable, e.Result)
		}

		next := *stored
		next.TestResult = e.Result
		next.HoursSinceTestRegistration = intPtr(hoursBetween(*stored.TestRegistrationDate, mc.Now))
		return &next, nil
	}
	return nil, fmt.Errorf("%w: unsupported test result event %T", ErrNotApplicable, event)
}

func registerTest(e RegisterNewTestMetadata, sc *SubmissionContext) (*TestResultMetadata, error) {
	if sc == nil || sc.RiskCalculation == nil {
		return nil, fmt.Errorf("%w: no risk calculation to register the test against", ErrMissingPrecondition)
	}
	calc := sc.RiskCalculation

	next := &TestResultMetadata{
		RegistrationToken:           e.Token,
		TestRegistrationDate:        timePtr(e.Date),
		RiskLevelAtTestRegistration: calc.RiskLevel,
	}

	days := -1
	if calc.MostRecentDateAtRiskLevel != nil {
		days = daysBetween(*calc.MostRecentDateAtRiskLevel, e.Date)
	}
	next.DaysSinceMostRecentDateAtRiskLevelAtTestRegistration = intPtr(days)

	if calc.RiskLevel != RiskLevelHigh {
		next.HoursSinceHighRiskWarningAtTestRegistration = intPtr(-1)
		return next, nil
	}
	if sc.DateOfConversionToHighRisk == nil {
		return next, fmt.Errorf("%w: high risk without a conversion date", ErrMissingPrecondition)
	}
	next.HoursSinceHighRiskWarningAtTestRegistration = intPtr(hoursBetween(*sc.DateOfConversionToHighRisk, e.Date))
	return next, nil
}

// MergeKeySubmission applies a sparse update, creating the record on demand
func MergeKeySubmission(stored *KeySubmissionMetadata, event KeySubmissionEvent) (*KeySubmissionMetadata, error) {
	var next KeySubmissionMetadata
	if stored != nil {
		next = *stored
	}

	switch e := event.(type) {
	case KeySubmissionComplete:
		next = e.Metadata

	case KeySubmissionFlagUpdate:
		v := boolPtr(e.Value)
		switch e.Flag {
		case FlagSubmitted:
			next.Submitted = v
		case FlagSubmittedInBackground:
			next.SubmittedInBackground = v
		case FlagSubmittedAfterCancel:
			next.SubmittedAfterCancel = v
		case FlagSubmittedAfterSymptomFlow:
			next.SubmittedAfterSymptomFlow = v
		case FlagSubmittedWithTeleTAN:
			next.SubmittedWithTeleTAN = v
		case FlagAdvancedConsentGiven:
			next.AdvancedConsentGiven = v
		default:
			return nil, fmt.Errorf("%w: unknown key submission flag %q", ErrNotApplicable, e.Flag)
		}

	case KeySubmissionScreenUpdate:
		next.LastSubmissionFlowScreen = e.Screen

	case KeySubmissionCounterUpdate:
		v := intPtr(e.Value)
		switch e.Counter {
		case CounterHoursSinceTestResult:
			next.HoursSinceTestResult = v
		case CounterHoursSinceTestRegistration:
			next.HoursSinceTestRegistration = v
		case CounterDaysSinceMostRecentDateAtRiskLevel:
			next.DaysSinceMostRecentDateAtRiskLevelAtTestRegistration = v
		case CounterHoursSinceHighRiskWarningAtTestStart:
			next.HoursSinceHighRiskWarningAtTestRegistration = v
		default:
			return nil, fmt.Errorf("%w: unknown key submission counter %q", ErrNotApplicable, e.Counter)
		}

	default:
		return nil, fmt.Errorf("%w: unsupported key submission event %T", ErrNotApplicable, event)
	}
	return &next, nil
}

// MergeSubmissionContext stores a new risk calculation. The conversion date
// is set when the level flips to high and cleared when it drops back.
func MergeSubmissionContext(stored *SubmissionContext, event RiskCalculationUpdate) (*SubmissionContext, error) {
	var next SubmissionContext
	if stored != nil {
		next = *stored
	}
	calc := event.Result

	wasHigh := stored != nil && stored.RiskCalculation != nil && stored.RiskCalculation.RiskLevel == RiskLevelHigh
	switch {
	case calc.RiskLevel == RiskLevelHigh && !wasHigh:
		next.DateOfConversionToHighRisk = timePtr(calc.CalculationDate)
	case calc.RiskLevel != RiskLevelHigh:
		next.DateOfConversionToHighRisk = nil
	}

	next.RiskCalculation = &calc
	return &next, nil
}

// hoursBetween truncates to whole hours
func hoursBetween(from, to time.Time) int {
	return int(to.Sub(from) / time.Hour)
}

// daysBetween counts UTC calendar days from one date to another
func daysBetween(from, to time.Time) int {
	return int(startOfDay(to).Sub(startOfDay(from)) / (24 * time.Hour))
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
