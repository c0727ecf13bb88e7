package analytics

import "time"

// Payload is the aggregated analytics message handed to the transport.
// Every section is present; categories without data contribute empty values.
type Payload struct {
	RiskExposureMetadataSet  []RiskExposureMetadata     `json:"riskExposureMetadataSet"`
	UserMetadata             UserMetadata               `json:"userMetadata"`
	ClientMetadata           ClientMetadata             `json:"clientMetadata"`
	TestResultMetadataSet    []TestResultMetadata       `json:"testResultMetadataSet"`
	KeySubmissionMetadataSet []KeySubmissionMetadata    `json:"keySubmissionMetadataSet"`
	NewExposureWindows       []SubmissionExposureWindow `json:"newExposureWindows"`
}

// assemblePayload builds the payload from a snapshot. Deferred categories and
// records still inside their configured holding period are left out.
func assemblePayload(snap *Snapshot, cfg *SubmissionConfiguration, deferred map[Category]bool, now time.Time) *Payload {
	p := &Payload{
		RiskExposureMetadataSet:  []RiskExposureMetadata{},
		TestResultMetadataSet:    []TestResultMetadata{},
		KeySubmissionMetadataSet: []KeySubmissionMetadata{},
		NewExposureWindows:       []SubmissionExposureWindow{},
	}

	if !deferred[CategoryRiskExposure] && snap.CurrentRiskExposure != nil {
		p.RiskExposureMetadataSet = append(p.RiskExposureMetadataSet, *snap.CurrentRiskExposure)
	}
	if !deferred[CategoryUserMetadata] && snap.UserMetadata != nil {
		p.UserMetadata = *snap.UserMetadata
	}
	if !deferred[CategoryClientMetadata] && snap.ClientMetadata != nil {
		p.ClientMetadata = *snap.ClientMetadata
	}
	if !deferred[CategoryTestResult] && testResultReady(snap.TestResult, cfg, now) {
		p.TestResultMetadataSet = append(p.TestResultMetadataSet, *snap.TestResult)
	}
	if !deferred[CategoryKeySubmission] && keySubmissionReady(snap, cfg, now) {
		p.KeySubmissionMetadataSet = append(p.KeySubmissionMetadataSet, *snap.KeySubmission)
	}
	if !deferred[CategoryExposureWindows] && snap.ExposureWindows != nil {
		p.NewExposureWindows = append(p.NewExposureWindows, snap.ExposureWindows.NewExposureWindowsQueue...)
	}
	return p
}

func testResultReady(tr *TestResultMetadata, cfg *SubmissionConfiguration, now time.Time) bool {
	if tr == nil {
		return false
	}
	threshold := cfg.HoursSinceTestRegistrationToSubmitTestResultMetadata
	if threshold <= 0 {
		return true
	}
	return tr.TestRegistrationDate != nil && hoursBetween(*tr.TestRegistrationDate, now) >= threshold
}

func keySubmissionReady(snap *Snapshot, cfg *SubmissionConfiguration, now time.Time) bool {
	if snap.KeySubmission == nil {
		return false
	}
	threshold := cfg.HoursSinceTestResultToSubmitKeySubmissionMetadata
	if threshold <= 0 {
		return true
	}
	if snap.Context == nil || snap.Context.TestResultReceivedAt == nil {
		return false
	}
	return hoursBetween(*snap.Context.TestResultReceivedAt, now) >= threshold
}
