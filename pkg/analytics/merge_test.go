package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestMergeRiskExposure_NoPreviousSnapshot(t *testing.T) {
	dates := []*time.Time{nil, timePtr(baseTime.AddDate(0, 0, -3))}
	levels := []RiskLevel{RiskLevelLow, RiskLevelHigh}

	for _, level := range levels {
		for _, date := range dates {
			next, err := MergeRiskExposure(nil, RiskExposureUpdate{RiskCalculation: RiskCalculationResult{
				RiskLevel:                 level,
				MostRecentDateAtRiskLevel: date,
				CalculationDate:           baseTime,
			}})
			require.NoError(t, err)
			assert.Equal(t, level, next.RiskLevel)
			assert.False(t, next.RiskLevelChangedComparedToPreviousSubmission)
			assert.False(t, next.DateChangedComparedToPreviousSubmission)
		}
	}
}

func TestMergeRiskExposure_ComparesToPrevious(t *testing.T) {
	d1 := baseTime.AddDate(0, 0, -5)
	d2 := baseTime.AddDate(0, 0, -2)

	tests := []struct {
		name        string
		previous    RiskExposureMetadata
		calc        RiskCalculationResult
		wantLevel   bool
		wantDate    bool
		wantNilDate bool
	}{
		{
			name:     "nothing changed",
			previous: RiskExposureMetadata{RiskLevel: RiskLevelLow, MostRecentDateAtRiskLevel: timePtr(d1)},
			calc:     RiskCalculationResult{RiskLevel: RiskLevelLow, MostRecentDateAtRiskLevel: timePtr(d1)},
		},
		{
			name:      "level changed",
			previous:  RiskExposureMetadata{RiskLevel: RiskLevelLow, MostRecentDateAtRiskLevel: timePtr(d1)},
			calc:      RiskCalculationResult{RiskLevel: RiskLevelHigh, MostRecentDateAtRiskLevel: timePtr(d1)},
			wantLevel: true,
		},
		{
			name:     "date changed",
			previous: RiskExposureMetadata{RiskLevel: RiskLevelHigh, MostRecentDateAtRiskLevel: timePtr(d1)},
			calc:     RiskCalculationResult{RiskLevel: RiskLevelHigh, MostRecentDateAtRiskLevel: timePtr(d2)},
			wantDate: true,
		},
		{
			name:        "date disappeared",
			previous:    RiskExposureMetadata{RiskLevel: RiskLevelHigh, MostRecentDateAtRiskLevel: timePtr(d1)},
			calc:        RiskCalculationResult{RiskLevel: RiskLevelLow},
			wantLevel:   true,
			wantDate:    true,
			wantNilDate: true,
		},
		{
			name:        "both dates absent",
			previous:    RiskExposureMetadata{RiskLevel: RiskLevelLow},
			calc:        RiskCalculationResult{RiskLevel: RiskLevelLow},
			wantNilDate: true,
		},
		{
			name:     "same instant in another zone",
			previous: RiskExposureMetadata{RiskLevel: RiskLevelLow, MostRecentDateAtRiskLevel: timePtr(d1)},
			calc:     RiskCalculationResult{RiskLevel: RiskLevelLow, MostRecentDateAtRiskLevel: timePtr(d1.In(time.FixedZone("CET", 3600)))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			previous := tt.previous
			next, err := MergeRiskExposure(&previous, RiskExposureUpdate{RiskCalculation: tt.calc})
			require.NoError(t, err)

			assert.Equal(t, tt.calc.RiskLevel, next.RiskLevel)
			assert.Equal(t, tt.wantLevel, next.RiskLevelChangedComparedToPreviousSubmission)
			assert.Equal(t, tt.wantDate, next.DateChangedComparedToPreviousSubmission)
			if tt.wantNilDate {
				assert.Nil(t, next.MostRecentDateAtRiskLevel)
			}
		})
	}
}

func TestMergeRiskExposure_Complete(t *testing.T) {
	complete := RiskExposureMetadata{RiskLevel: RiskLevelHigh, RiskLevelChangedComparedToPreviousSubmission: true}
	next, err := MergeRiskExposure(&RiskExposureMetadata{RiskLevel: RiskLevelLow}, RiskExposureComplete{Metadata: complete})
	require.NoError(t, err)
	assert.Equal(t, complete, *next)
}

func highRiskContext(conversion time.Time) *SubmissionContext {
	return &SubmissionContext{
		RiskCalculation: &RiskCalculationResult{
			RiskLevel:                 RiskLevelHigh,
			MostRecentDateAtRiskLevel: timePtr(baseTime.AddDate(0, 0, -4)),
			CalculationDate:           conversion,
		},
		DateOfConversionToHighRisk: timePtr(conversion),
	}
}

func TestMergeTestResult_RegisterHighRisk(t *testing.T) {
	registration := baseTime
	sc := highRiskContext(registration.Add(-24 * time.Hour))

	next, err := MergeTestResult(nil, RegisterNewTestMetadata{Date: registration, Token: "T"}, MergeContext{Now: registration, Context: sc})
	require.NoError(t, err)

	assert.Equal(t, "T", next.RegistrationToken)
	assert.Equal(t, registration, *next.TestRegistrationDate)
	assert.Empty(t, next.TestResult, "a registration carries no result yet")
	assert.Nil(t, next.HoursSinceTestRegistration)
	assert.Equal(t, RiskLevelHigh, next.RiskLevelAtTestRegistration)
	require.NotNil(t, next.HoursSinceHighRiskWarningAtTestRegistration)
	assert.Equal(t, 24, *next.HoursSinceHighRiskWarningAtTestRegistration)
	require.NotNil(t, next.DaysSinceMostRecentDateAtRiskLevelAtTestRegistration)
	assert.Equal(t, 4, *next.DaysSinceMostRecentDateAtRiskLevelAtTestRegistration)
}

func TestMergeTestResult_RegisterLowRisk(t *testing.T) {
	conversions := []*time.Time{nil, timePtr(baseTime.Add(-48 * time.Hour))}

	for _, conversion := range conversions {
		sc := &SubmissionContext{
			RiskCalculation:            &RiskCalculationResult{RiskLevel: RiskLevelLow, CalculationDate: baseTime},
			DateOfConversionToHighRisk: conversion,
		}
		next, err := MergeTestResult(nil, RegisterNewTestMetadata{Date: baseTime, Token: "T"}, MergeContext{Now: baseTime, Context: sc})
		require.NoError(t, err)
		require.NotNil(t, next.HoursSinceHighRiskWarningAtTestRegistration)
		assert.Equal(t, -1, *next.HoursSinceHighRiskWarningAtTestRegistration)
		assert.Equal(t, -1, *next.DaysSinceMostRecentDateAtRiskLevelAtTestRegistration)
	}
}

func TestMergeTestResult_RegisterWithoutRiskCalculation(t *testing.T) {
	for _, sc := range []*SubmissionContext{nil, {}} {
		next, err := MergeTestResult(nil, RegisterNewTestMetadata{Date: baseTime, Token: "T"}, MergeContext{Now: baseTime, Context: sc})
		assert.Nil(t, next)
		assert.ErrorIs(t, err, ErrMissingPrecondition)
		assert.True(t, IsMergeSkipped(err))
	}
}

func TestMergeTestResult_RegisterHighRiskWithoutConversionDate(t *testing.T) {
	sc := highRiskContext(baseTime)
	sc.DateOfConversionToHighRisk = nil

	next, err := MergeTestResult(nil, RegisterNewTestMetadata{Date: baseTime, Token: "T"}, MergeContext{Now: baseTime, Context: sc})
	assert.ErrorIs(t, err, ErrMissingPrecondition)
	require.NotNil(t, next, "the rest of the registration is still applied")
	assert.Equal(t, "T", next.RegistrationToken)
	assert.Nil(t, next.HoursSinceHighRiskWarningAtTestRegistration)
}

func registeredTest(token string, at time.Time) *TestResultMetadata {
	return &TestResultMetadata{
		RegistrationToken:           token,
		TestRegistrationDate:        timePtr(at),
		RiskLevelAtTestRegistration: RiskLevelLow,
	}
}

func TestMergeTestResult_Update(t *testing.T) {
	stored := registeredTest("T", baseTime)
	now := baseTime.Add(30*time.Hour + 20*time.Minute)

	next, err := MergeTestResult(stored, UpdateTestResult{Result: TestResultPositive, Token: "T"}, MergeContext{Now: now})
	require.NoError(t, err)
	assert.Equal(t, TestResultPositive, next.TestResult)
	require.NotNil(t, next.HoursSinceTestRegistration)
	assert.Equal(t, 30, *next.HoursSinceTestRegistration)
	assert.Empty(t, stored.TestResult, "stored record must not be mutated")
}

func TestMergeTestResult_RegisterThenPending(t *testing.T) {
	sc := &SubmissionContext{RiskCalculation: &RiskCalculationResult{RiskLevel: RiskLevelLow, CalculationDate: baseTime}}
	registered, err := MergeTestResult(nil, RegisterNewTestMetadata{Date: baseTime, Token: "T"}, MergeContext{Now: baseTime, Context: sc})
	require.NoError(t, err)

	pending, err := MergeTestResult(registered, UpdateTestResult{Result: TestResultPending, Token: "T"}, MergeContext{Now: baseTime.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, TestResultPending, pending.TestResult)
	require.NotNil(t, pending.HoursSinceTestRegistration)
	assert.Equal(t, 3, *pending.HoursSinceTestRegistration)

	positive, err := MergeTestResult(pending, UpdateTestResult{Result: TestResultPositive, Token: "T"}, MergeContext{Now: baseTime.Add(26 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, TestResultPositive, positive.TestResult)
	assert.Equal(t, 26, *positive.HoursSinceTestRegistration)

	again, err := MergeTestResult(positive, UpdateTestResult{Result: TestResultPositive, Token: "T"}, MergeContext{Now: baseTime.Add(40 * time.Hour)})
	assert.Nil(t, again)
	assert.ErrorIs(t, err, ErrNotApplicable)
}

func TestMergeTestResult_UpdateIsIdempotent(t *testing.T) {
	stored := registeredTest("T", baseTime)
	event := UpdateTestResult{Result: TestResultNegative, Token: "T"}

	first, err := MergeTestResult(stored, event, MergeContext{Now: baseTime.Add(5 * time.Hour)})
	require.NoError(t, err)

	second, err := MergeTestResult(first, event, MergeContext{Now: baseTime.Add(9 * time.Hour)})
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrNotApplicable)
	assert.Equal(t, 5, *first.HoursSinceTestRegistration)
}

func TestMergeTestResult_UpdateRejected(t *testing.T) {
	tests := []struct {
		name    string
		stored  *TestResultMetadata
		event   UpdateTestResult
		wantErr error
	}{
		{
			name:    "mismatched token",
			stored:  registeredTest("T", baseTime),
			event:   UpdateTestResult{Result: TestResultPositive, Token: "other"},
			wantErr: ErrMissingPrecondition,
		},
		{
			name:    "nothing registered",
			stored:  nil,
			event:   UpdateTestResult{Result: TestResultPositive, Token: "T"},
			wantErr: ErrMissingPrecondition,
		},
		{
			name:    "registration date missing",
			stored:  &TestResultMetadata{RegistrationToken: "T", TestResult: TestResultPending},
			event:   UpdateTestResult{Result: TestResultPositive, Token: "T"},
			wantErr: ErrMissingPrecondition,
		},
		{
			name:    "invalid result",
			stored:  registeredTest("T", baseTime),
			event:   UpdateTestResult{Result: TestResultInvalid, Token: "T"},
			wantErr: ErrNotApplicable,
		},
		{
			name:    "expired result",
			stored:  registeredTest("T", baseTime),
			event:   UpdateTestResult{Result: TestResultExpired, Token: "T"},
			wantErr: ErrNotApplicable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before TestResultMetadata
			if tt.stored != nil {
				before = *tt.stored
			}
			next, err := MergeTestResult(tt.stored, tt.event, MergeContext{Now: baseTime.Add(time.Hour)})
			assert.Nil(t, next)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.stored != nil {
				assert.Equal(t, before, *tt.stored)
				assert.Nil(t, tt.stored.HoursSinceTestRegistration)
			}
		})
	}
}

func TestMergeKeySubmission_Sparse(t *testing.T) {
	next, err := MergeKeySubmission(nil, KeySubmissionFlagUpdate{Flag: FlagSubmitted, Value: true})
	require.NoError(t, err)
	require.NotNil(t, next.Submitted)
	assert.True(t, *next.Submitted)
	assert.Nil(t, next.SubmittedInBackground)

	next, err = MergeKeySubmission(next, KeySubmissionScreenUpdate{Screen: SubmissionScreenSymptoms})
	require.NoError(t, err)
	next, err = MergeKeySubmission(next, KeySubmissionCounterUpdate{Counter: CounterHoursSinceTestResult, Value: 7})
	require.NoError(t, err)
	next, err = MergeKeySubmission(next, KeySubmissionFlagUpdate{Flag: FlagAdvancedConsentGiven, Value: false})
	require.NoError(t, err)

	assert.True(t, *next.Submitted)
	assert.Equal(t, SubmissionScreenSymptoms, next.LastSubmissionFlowScreen)
	assert.Equal(t, 7, *next.HoursSinceTestResult)
	require.NotNil(t, next.AdvancedConsentGiven)
	assert.False(t, *next.AdvancedConsentGiven)
	assert.Nil(t, next.HoursSinceTestRegistration)
}

func TestMergeKeySubmission_EveryField(t *testing.T) {
	flags := []KeySubmissionFlag{
		FlagSubmitted, FlagSubmittedInBackground, FlagSubmittedAfterCancel,
		FlagSubmittedAfterSymptomFlow, FlagSubmittedWithTeleTAN, FlagAdvancedConsentGiven,
	}
	counters := []KeySubmissionCounter{
		CounterHoursSinceTestResult, CounterHoursSinceTestRegistration,
		CounterDaysSinceMostRecentDateAtRiskLevel, CounterHoursSinceHighRiskWarningAtTestStart,
	}

	var record *KeySubmissionMetadata
	var err error
	for _, f := range flags {
		record, err = MergeKeySubmission(record, KeySubmissionFlagUpdate{Flag: f, Value: true})
		require.NoError(t, err, f)
	}
	for i, c := range counters {
		record, err = MergeKeySubmission(record, KeySubmissionCounterUpdate{Counter: c, Value: i + 1})
		require.NoError(t, err, c)
	}

	want := KeySubmissionMetadata{
		Submitted:                 boolPtr(true),
		SubmittedInBackground:     boolPtr(true),
		SubmittedAfterCancel:      boolPtr(true),
		SubmittedAfterSymptomFlow: boolPtr(true),
		SubmittedWithTeleTAN:      boolPtr(true),
		AdvancedConsentGiven:      boolPtr(true),
	}
	want.HoursSinceTestResult = intPtr(1)
	want.HoursSinceTestRegistration = intPtr(2)
	want.DaysSinceMostRecentDateAtRiskLevelAtTestRegistration = intPtr(3)
	want.HoursSinceHighRiskWarningAtTestRegistration = intPtr(4)
	assert.Equal(t, want, *record)
}

func TestMergeKeySubmission_Unknown(t *testing.T) {
	stored := &KeySubmissionMetadata{Submitted: boolPtr(true)}

	next, err := MergeKeySubmission(stored, KeySubmissionFlagUpdate{Flag: "bogus", Value: true})
	assert.Nil(t, next)
	assert.True(t, IsMergeSkipped(err))

	next, err = MergeKeySubmission(stored, KeySubmissionCounterUpdate{Counter: "bogus", Value: 1})
	assert.Nil(t, next)
	assert.True(t, IsMergeSkipped(err))
}

func TestMergeSubmissionContext_ConversionToHighRisk(t *testing.T) {
	low := RiskCalculationUpdate{Result: RiskCalculationResult{RiskLevel: RiskLevelLow, CalculationDate: baseTime}}
	high1 := RiskCalculationUpdate{Result: RiskCalculationResult{RiskLevel: RiskLevelHigh, CalculationDate: baseTime.Add(time.Hour)}}
	high2 := RiskCalculationUpdate{Result: RiskCalculationResult{RiskLevel: RiskLevelHigh, CalculationDate: baseTime.Add(2 * time.Hour)}}

	sc, err := MergeSubmissionContext(nil, low)
	require.NoError(t, err)
	assert.Nil(t, sc.DateOfConversionToHighRisk)

	sc, err = MergeSubmissionContext(sc, high1)
	require.NoError(t, err)
	require.NotNil(t, sc.DateOfConversionToHighRisk)
	assert.Equal(t, baseTime.Add(time.Hour), *sc.DateOfConversionToHighRisk)

	sc, err = MergeSubmissionContext(sc, high2)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(time.Hour), *sc.DateOfConversionToHighRisk, "staying high keeps the first conversion")
	assert.Equal(t, baseTime.Add(2*time.Hour), sc.RiskCalculation.CalculationDate)

	sc, err = MergeSubmissionContext(sc, low)
	require.NoError(t, err)
	assert.Nil(t, sc.DateOfConversionToHighRisk)
}

func TestMergeSubmissionContext_KeepsTestResultReceivedAt(t *testing.T) {
	stored := &SubmissionContext{TestResultReceivedAt: timePtr(baseTime)}
	sc, err := MergeSubmissionContext(stored, RiskCalculationUpdate{Result: RiskCalculationResult{RiskLevel: RiskLevelLow}})
	require.NoError(t, err)
	assert.Equal(t, baseTime, *sc.TestResultReceivedAt)
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, daysBetween(baseTime, baseTime.Add(11*time.Hour)))
	assert.Equal(t, 1, daysBetween(baseTime, baseTime.Add(12*time.Hour)))
	assert.Equal(t, 15, daysBetween(baseTime.AddDate(0, 0, -15), baseTime))
	assert.Equal(t, -2, daysBetween(baseTime, baseTime.AddDate(0, 0, -2)))
}
