package analytics

import "time"

// RiskLevel is the binary exposure risk computed by the risk engine
type RiskLevel string

const (
	RiskLevelLow  RiskLevel = "low"
	RiskLevelHigh RiskLevel = "high"
)

// FederalState is the two letter code of a German federal state
type FederalState string

const (
	FederalStateBadenWuerttemberg     FederalState = "BW"
	FederalStateBayern                FederalState = "BY"
	FederalStateBerlin                FederalState = "BE"
	FederalStateBrandenburg           FederalState = "BB"
	FederalStateBremen                FederalState = "HB"
	FederalStateHamburg               FederalState = "HH"
	FederalStateHessen                FederalState = "HE"
	FederalStateMecklenburgVorpommern FederalState = "MV"
	FederalStateNiedersachsen         FederalState = "NI"
	FederalStateNordrheinWestfalen    FederalState = "NW"
	FederalStateRheinlandPfalz        FederalState = "RP"
	FederalStateSaarland              FederalState = "SL"
	FederalStateSachsen               FederalState = "SN"
	FederalStateSachsenAnhalt         FederalState = "ST"
	FederalStateSchleswigHolstein     FederalState = "SH"
	FederalStateThueringen            FederalState = "TH"
)

// AgeGroup buckets the user's age
type AgeGroup string

const (
	AgeGroupUnspecified AgeGroup = "unspecified"
	AgeGroupUnder29     AgeGroup = "0-29"
	AgeGroup30To59      AgeGroup = "30-59"
	AgeGroupFrom60      AgeGroup = "60+"
)

// TestResult is the lab result of a registered test
type TestResult string

const (
	TestResultPending  TestResult = "pending"
	TestResultPositive TestResult = "positive"
	TestResultNegative TestResult = "negative"
	TestResultInvalid  TestResult = "invalid"
	TestResultExpired  TestResult = "expired"
)

// actionable results are the only ones that update test result metadata
func (r TestResult) actionable() bool {
	return r == TestResultPending || r == TestResultPositive || r == TestResultNegative
}

// SubmissionFlowScreen identifies the last screen a user saw in the key submission flow
type SubmissionFlowScreen string

const (
	SubmissionScreenUnknown        SubmissionFlowScreen = "unknown"
	SubmissionScreenTestResult     SubmissionFlowScreen = "testResult"
	SubmissionScreenWarnOthers     SubmissionFlowScreen = "warnOthers"
	SubmissionScreenSymptoms       SubmissionFlowScreen = "symptoms"
	SubmissionScreenSymptomOnset   SubmissionFlowScreen = "symptomOnset"
	SubmissionScreenTestResultInfo SubmissionFlowScreen = "testResultInfo"
)

// UserMetadata is overwritten wholesale on every update
type UserMetadata struct {
	FederalState       FederalState `json:"federalState"`
	AdministrativeUnit int          `json:"administrativeUnit"`
	AgeGroup           AgeGroup     `json:"ageGroup"`
}

// RiskExposureMetadata is kept twice: current and previous, where previous is
// the snapshot taken at the last successful submission
type RiskExposureMetadata struct {
	RiskLevel                                    RiskLevel  `json:"riskLevel"`
	RiskLevelChangedComparedToPreviousSubmission bool       `json:"riskLevelChangedComparedToPreviousSubmission"`
	MostRecentDateAtRiskLevel                    *time.Time `json:"mostRecentDateAtRiskLevel,omitempty"`
	DateChangedComparedToPreviousSubmission      bool       `json:"dateChangedComparedToPreviousSubmission"`
}

// ClientMetadata describes the configuration the client ran with at submission time
type ClientMetadata struct {
	ETag string `json:"eTag,omitempty"`
}

// TestResultMetadata tracks a single registered test
type TestResultMetadata struct {
	RegistrationToken                                    string     `json:"registrationToken"`
	TestRegistrationDate                                 *time.Time `json:"testRegistrationDate,omitempty"`
	TestResult                                           TestResult `json:"testResult,omitempty"`
	RiskLevelAtTestRegistration                          RiskLevel  `json:"riskLevelAtTestRegistration,omitempty"`
	DaysSinceMostRecentDateAtRiskLevelAtTestRegistration *int       `json:"daysSinceMostRecentDateAtRiskLevelAtTestRegistration,omitempty"`
	HoursSinceTestRegistration                           *int       `json:"hoursSinceTestRegistration,omitempty"`
	HoursSinceHighRiskWarningAtTestRegistration          *int       `json:"hoursSinceHighRiskWarningAtTestRegistration,omitempty"`
}

// KeySubmissionMetadata describes one diagnosis key submission. Every field is
// optional and set independently of the others.
type KeySubmissionMetadata struct {
	Submitted                                            *bool                `json:"submitted,omitempty"`
	SubmittedInBackground                                *bool                `json:"submittedInBackground,omitempty"`
	SubmittedAfterCancel                                 *bool                `json:"submittedAfterCancel,omitempty"`
	SubmittedAfterSymptomFlow                            *bool                `json:"submittedAfterSymptomFlow,omitempty"`
	SubmittedWithTeleTAN                                 *bool                `json:"submittedWithTeleTAN,omitempty"`
	AdvancedConsentGiven                                 *bool                `json:"advancedConsentGiven,omitempty"`
	LastSubmissionFlowScreen                             SubmissionFlowScreen `json:"lastSubmissionFlowScreen,omitempty"`
	HoursSinceTestResult                                 *int                 `json:"hoursSinceTestResult,omitempty"`
	HoursSinceTestRegistration                           *int                 `json:"hoursSinceTestRegistration,omitempty"`
	DaysSinceMostRecentDateAtRiskLevelAtTestRegistration *int                 `json:"daysSinceMostRecentDateAtRiskLevelAtTestRegistration,omitempty"`
	HoursSinceHighRiskWarningAtTestRegistration          *int                 `json:"hoursSinceHighRiskWarningAtTestRegistration,omitempty"`
}

// ScanInstance is a single Bluetooth scan inside an exposure window
type ScanInstance struct {
	MinAttenuation       int `json:"minAttenuation"`
	TypicalAttenuation   int `json:"typicalAttenuation"`
	SecondsSinceLastScan int `json:"secondsSinceLastScan"`
}

// ExposureWindow is the raw scan data reported by the exposure notification framework
type ExposureWindow struct {
	Date                  time.Time      `json:"date"`
	CalibrationConfidence int            `json:"calibrationConfidence"`
	Infectiousness        int            `json:"infectiousness"`
	ReportType            int            `json:"reportType"`
	ScanInstances         []ScanInstance `json:"scanInstances"`
}

// ScoredExposureWindow is an exposure window together with the values the risk
// engine derived for it
type ScoredExposureWindow struct {
	Window                ExposureWindow `json:"window"`
	TransmissionRiskLevel int            `json:"transmissionRiskLevel"`
	NormalizedTime        float64        `json:"normalizedTime"`
}

// SubmissionExposureWindow is the reported form of a window. Identity is Hash;
// an empty Hash means the window could not be fingerprinted.
type SubmissionExposureWindow struct {
	ExposureWindow        ExposureWindow `json:"exposureWindow"`
	TransmissionRiskLevel int            `json:"transmissionRiskLevel"`
	NormalizedTime        float64        `json:"normalizedTime"`
	Hash                  string         `json:"hash,omitempty"`
	Date                  time.Time      `json:"date"`
}

// ExposureWindowsMetadata holds the windows waiting for their first submission
// and the windows already reported, kept for deduplication
type ExposureWindowsMetadata struct {
	NewExposureWindowsQueue      []SubmissionExposureWindow `json:"newExposureWindowsQueue"`
	ReportedExposureWindowsQueue []SubmissionExposureWindow `json:"reportedExposureWindowsQueue"`
}

// RiskCalculationResult is the output of the external risk engine
type RiskCalculationResult struct {
	RiskLevel                 RiskLevel  `json:"riskLevel"`
	MostRecentDateAtRiskLevel *time.Time `json:"mostRecentDateAtRiskLevel,omitempty"`
	CalculationDate           time.Time  `json:"calculationDate"`
}

// SubmissionContext holds the values other merges depend on
type SubmissionContext struct {
	RiskCalculation            *RiskCalculationResult `json:"riskCalculation,omitempty"`
	DateOfConversionToHighRisk *time.Time             `json:"dateOfConversionToHighRisk,omitempty"`
	TestResultReceivedAt       *time.Time             `json:"testResultReceivedAt,omitempty"`
}

// SubmissionConfiguration is the part of the app configuration the pipeline reads
type SubmissionConfiguration struct {
	// SubmissionProbability is the sampling rate in [0,1]
	SubmissionProbability float64 `json:"submissionProbability" yaml:"submission_probability"`

	// ETag fingerprints the configuration version
	ETag string `json:"eTag,omitempty" yaml:"etag"`

	// HoursSinceTestRegistrationToSubmitTestResultMetadata holds test result
	// metadata back until enough time has passed. Zero disables the check.
	HoursSinceTestRegistrationToSubmitTestResultMetadata int `json:"hoursSinceTestRegistrationToSubmitTestResultMetadata" yaml:"hours_since_test_registration_to_submit_test_result_metadata"`

	// HoursSinceTestResultToSubmitKeySubmissionMetadata holds key submission
	// metadata back until enough time has passed. Zero disables the check.
	HoursSinceTestResultToSubmitKeySubmissionMetadata int `json:"hoursSinceTestResultToSubmitKeySubmissionMetadata" yaml:"hours_since_test_result_to_submit_key_submission_metadata"`
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func timePtr(t time.Time) *time.Time { return &t }
