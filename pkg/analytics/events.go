package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category names a stored metadata record
type Category string

const (
	CategoryUserMetadata      Category = "userMetadata"
	CategoryRiskExposure      Category = "riskExposureMetadata"
	CategoryClientMetadata    Category = "clientMetadata"
	CategoryTestResult        Category = "testResultMetadata"
	CategoryKeySubmission     Category = "keySubmissionMetadata"
	CategoryExposureWindows   Category = "exposureWindowsMetadata"
	CategorySubmissionContext Category = "submissionContext"
)

// Event is a single report from the application. The set of implementations
// is closed: only types in this package satisfy it.
type Event interface {
	Category() Category
	isEvent()
}

// UserMetadataUpdate replaces the stored user metadata
type UserMetadataUpdate struct {
	Metadata UserMetadata `json:"metadata"`
}

// ClientMetadataUpdate replaces the stored client metadata
type ClientMetadataUpdate struct {
	Metadata ClientMetadata `json:"metadata"`
}

// RiskExposureEvent is an update to the current risk exposure record
type RiskExposureEvent interface {
	Event
	riskExposureEvent()
}

// RiskExposureComplete replaces the current risk exposure record
type RiskExposureComplete struct {
	Metadata RiskExposureMetadata `json:"metadata"`
}

// RiskExposureUpdate derives the current record from a new risk calculation
type RiskExposureUpdate struct {
	RiskCalculation RiskCalculationResult `json:"riskCalculation"`
}

// TestResultEvent is an update to the test result record
type TestResultEvent interface {
	Event
	testResultEvent()
}

// TestResultComplete replaces the test result record
type TestResultComplete struct {
	Metadata TestResultMetadata `json:"metadata"`
}

// RegisterNewTestMetadata starts tracking a newly registered test
type RegisterNewTestMetadata struct {
	Date  time.Time `json:"date"`
	Token string    `json:"token"`
}

// UpdateTestResult records a result received for the registered test
type UpdateTestResult struct {
	Result TestResult `json:"result"`
	Token  string     `json:"token"`
}

// KeySubmissionEvent is a sparse update to the key submission record
type KeySubmissionEvent interface {
	Event
	keySubmissionEvent()
}

// KeySubmissionFlag names a boolean field of KeySubmissionMetadata
type KeySubmissionFlag string

const (
	FlagSubmitted                 KeySubmissionFlag = "submitted"
	FlagSubmittedInBackground     KeySubmissionFlag = "submittedInBackground"
	FlagSubmittedAfterCancel      KeySubmissionFlag = "submittedAfterCancel"
	FlagSubmittedAfterSymptomFlow KeySubmissionFlag = "submittedAfterSymptomFlow"
	FlagSubmittedWithTeleTAN      KeySubmissionFlag = "submittedWithTeleTAN"
	FlagAdvancedConsentGiven      KeySubmissionFlag = "advancedConsentGiven"
)

// KeySubmissionCounter names an integer field of KeySubmissionMetadata
type KeySubmissionCounter string

const (
	CounterHoursSinceTestResult                 KeySubmissionCounter = "hoursSinceTestResult"
	CounterHoursSinceTestRegistration           KeySubmissionCounter = "hoursSinceTestRegistration"
	CounterDaysSinceMostRecentDateAtRiskLevel   KeySubmissionCounter = "daysSinceMostRecentDateAtRiskLevelAtTestRegistration"
	CounterHoursSinceHighRiskWarningAtTestStart KeySubmissionCounter = "hoursSinceHighRiskWarningAtTestRegistration"
)

// KeySubmissionComplete replaces the key submission record
type KeySubmissionComplete struct {
	Metadata KeySubmissionMetadata `json:"metadata"`
}

// KeySubmissionFlagUpdate sets one boolean field
type KeySubmissionFlagUpdate struct {
	Flag  KeySubmissionFlag `json:"flag"`
	Value bool              `json:"value"`
}

// KeySubmissionScreenUpdate sets the last visited submission flow screen
type KeySubmissionScreenUpdate struct {
	Screen SubmissionFlowScreen `json:"screen"`
}

// KeySubmissionCounterUpdate sets one integer field
type KeySubmissionCounterUpdate struct {
	Counter KeySubmissionCounter `json:"counter"`
	Value   int                  `json:"value"`
}

// ExposureWindowsObserved hands the windows of the latest detection run to the deduplicator
type ExposureWindowsObserved struct {
	Windows []ScoredExposureWindow `json:"windows"`
}

// RiskCalculationUpdate stores the latest risk calculation for later merges
type RiskCalculationUpdate struct {
	Result RiskCalculationResult `json:"result"`
}

func (UserMetadataUpdate) Category() Category         { return CategoryUserMetadata }
func (ClientMetadataUpdate) Category() Category       { return CategoryClientMetadata }
func (RiskExposureComplete) Category() Category       { return CategoryRiskExposure }
func (RiskExposureUpdate) Category() Category         { return CategoryRiskExposure }
func (TestResultComplete) Category() Category         { return CategoryTestResult }
func (RegisterNewTestMetadata) Category() Category    { return CategoryTestResult }
func (UpdateTestResult) Category() Category           { return CategoryTestResult }
func (KeySubmissionComplete) Category() Category      { return CategoryKeySubmission }
func (KeySubmissionFlagUpdate) Category() Category    { return CategoryKeySubmission }
func (KeySubmissionScreenUpdate) Category() Category  { return CategoryKeySubmission }
func (KeySubmissionCounterUpdate) Category() Category { return CategoryKeySubmission }
func (ExposureWindowsObserved) Category() Category    { return CategoryExposureWindows }
func (RiskCalculationUpdate) Category() Category      { return CategorySubmissionContext }

func (UserMetadataUpdate) isEvent()         {}
func (ClientMetadataUpdate) isEvent()       {}
func (RiskExposureComplete) isEvent()       {}
func (RiskExposureUpdate) isEvent()         {}
func (TestResultComplete) isEvent()         {}
func (RegisterNewTestMetadata) isEvent()    {}
func (UpdateTestResult) isEvent()           {}
func (KeySubmissionComplete) isEvent()      {}
func (KeySubmissionFlagUpdate) isEvent()    {}
func (KeySubmissionScreenUpdate) isEvent()  {}
func (KeySubmissionCounterUpdate) isEvent() {}
func (ExposureWindowsObserved) isEvent()    {}
func (RiskCalculationUpdate) isEvent()      {}

func (RiskExposureComplete) riskExposureEvent() {}
func (RiskExposureUpdate) riskExposureEvent()   {}

func (TestResultComplete) testResultEvent()      {}
func (RegisterNewTestMetadata) testResultEvent() {}
func (UpdateTestResult) testResultEvent()        {}

func (KeySubmissionComplete) keySubmissionEvent()      {}
func (KeySubmissionFlagUpdate) keySubmissionEvent()    {}
func (KeySubmissionScreenUpdate) keySubmissionEvent()  {}
func (KeySubmissionCounterUpdate) keySubmissionEvent() {}

// eventDecoders maps wire type names to constructors
var eventDecoders = map[string]func(json.RawMessage) (Event, error){
	"userMetadata":            decodeEvent[UserMetadataUpdate],
	"clientMetadata":          decodeEvent[ClientMetadataUpdate],
	"riskExposureComplete":    decodeEvent[RiskExposureComplete],
	"riskExposureUpdate":      decodeEvent[RiskExposureUpdate],
	"testResultComplete":      decodeEvent[TestResultComplete],
	"registerNewTestMetadata": decodeEvent[RegisterNewTestMetadata],
	"updateTestResult":        decodeEvent[UpdateTestResult],
	"keySubmissionComplete":   decodeEvent[KeySubmissionComplete],
	"keySubmissionFlag":       decodeEvent[KeySubmissionFlagUpdate],
	"keySubmissionScreen":     decodeEvent[KeySubmissionScreenUpdate],
	"keySubmissionCounter":    decodeEvent[KeySubmissionCounterUpdate],
	"exposureWindowsObserved": decodeEvent[ExposureWindowsObserved],
	"riskCalculation":         decodeEvent[RiskCalculationUpdate],
}

func decodeEvent[T Event](data json.RawMessage) (Event, error) {
	var event T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, err
		}
	}
	return event, nil
}

// ParseEvent decodes an event from its wire type name and JSON body
func ParseEvent(eventType string, data json.RawMessage) (Event, error) {
	decode, ok := eventDecoders[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	event, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("invalid %s event: %w", eventType, err)
	}
	return event, nil
}
