package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/ppac/pkg/observability"
)

var submitterTracer = otel.Tracer("ppac/analytics/submitter")

// ConfigurationProvider returns the current submission parameters
type ConfigurationProvider interface {
	CurrentConfiguration(ctx context.Context) (*SubmissionConfiguration, error)
}

// TokenProvider issues the authentication token for a submission
type TokenProvider interface {
	AcquireToken(ctx context.Context) (string, error)
}

// Transport delivers a payload. force asks the server to skip its own
// rate limiting and is only set for diagnostic submissions.
type Transport interface {
	Submit(ctx context.Context, payload *Payload, token string, force bool) error
}

// SubmissionState is the last stage an attempt reached
type SubmissionState string

const (
	StateIdle             SubmissionState = "idle"
	StateConfigFetched    SubmissionState = "configFetched"
	StateGateChecked      SubmissionState = "gateChecked"
	StateTokenAcquired    SubmissionState = "tokenAcquired"
	StatePayloadAssembled SubmissionState = "payloadAssembled"
	StateSubmitted        SubmissionState = "submitted"
)

// SubmissionReport describes one attempt
type SubmissionReport struct {
	AttemptID  string          `json:"attemptId"`
	Forced     bool            `json:"forced"`
	State      SubmissionState `json:"state"`
	Success    bool            `json:"success"`
	Skipped    bool            `json:"skipped"`
	Reason     string          `json:"reason,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Payload    *Payload        `json:"payload,omitempty"`
}

// Submitter runs the one-shot submission pipeline:
// config, eligibility gate, token, payload, transport, commit.
type Submitter struct {
	store     *MetadataStore
	config    ConfigurationProvider
	tokens    TokenProvider
	transport Transport
	gate      *EligibilityGate
	deferred  map[Category]bool
	now       func() time.Time
	logger    logrus.FieldLogger
	metrics   *observability.Metrics
}

// AttemptSubmission runs one attempt. The report is always returned. The
// error is nil on success, a skip error (see IsSkip) when the gate declined,
// and a failure otherwise; a failed attempt leaves stored state untouched.
func (s *Submitter) AttemptSubmission(ctx context.Context, force bool) (*SubmissionReport, error) {
	report := &SubmissionReport{
		AttemptID: uuid.New().String(),
		Forced:    force,
		State:     StateIdle,
		StartedAt: s.now(),
	}
	log := s.logger.WithFields(logrus.Fields{
		"attempt_id": report.AttemptID,
		"forced":     force,
	})

	ctx, span := submitterTracer.Start(ctx, "AttemptSubmission",
		trace.WithAttributes(
			attribute.String("attempt_id", report.AttemptID),
			attribute.Bool("forced", force),
		),
	)
	defer span.End()

	err := s.run(ctx, report, force, log)
	report.FinishedAt = s.now()
	duration := report.FinishedAt.Sub(report.StartedAt)
	span.SetAttributes(attribute.String("state", string(report.State)))

	switch {
	case err == nil:
		report.Success = true
		span.SetStatus(codes.Ok, "submitted")
		s.metrics.RecordSubmission("success", "", duration)
		log.Info("Analytics submission succeeded")
	case IsSkip(err):
		report.Skipped = true
		report.Reason = err.Error()
		span.SetStatus(codes.Ok, "skipped")
		s.metrics.RecordSubmission("skipped", skipReason(err), duration)
	default:
		report.Reason = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		s.metrics.RecordSubmission("failed", failureReason(err), duration)
		log.WithError(err).WithField("stage", string(report.State)).Warn("Analytics submission failed")
	}
	return report, err
}

func (s *Submitter) run(ctx context.Context, report *SubmissionReport, force bool, log logrus.FieldLogger) error {
	cfg, err := s.config.CurrentConfiguration(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
	}
	if cfg == nil {
		return fmt.Errorf("%w: provider returned no configuration", ErrConfigUnavailable)
	}
	report.State = StateConfigFetched
	trace.SpanFromContext(ctx).AddEvent(string(StateConfigFetched))

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read gate input: %w", err)
	}
	gateInput := GateInput{
		Now:                   s.now(),
		Consent:               snap.Consent,
		LastSubmission:        snap.LastSubmission,
		OnboardedDate:         snap.OnboardedDate,
		LastAppReset:          snap.LastAppReset,
		SubmissionProbability: cfg.SubmissionProbability,
		Force:                 force,
	}
	if err := s.gate.Check(gateInput); err != nil {
		return err
	}
	report.State = StateGateChecked
	trace.SpanFromContext(ctx).AddEvent(string(StateGateChecked))

	token, err := s.tokens.AcquireToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	report.State = StateTokenAcquired
	trace.SpanFromContext(ctx).AddEvent(string(StateTokenAcquired))

	payload, snap, err := s.assemble(ctx, cfg)
	if err != nil {
		return err
	}
	report.Payload = payload
	report.State = StatePayloadAssembled
	trace.SpanFromContext(ctx).AddEvent(string(StatePayloadAssembled))

	if err := s.submit(ctx, payload, token, force); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailed, err)
	}
	report.State = StateSubmitted

	if err := s.commit(ctx, report.AttemptID, payload, snap); err != nil {
		// The server has the payload; the next attempt may resend deltas.
		log.WithError(err).Error("Failed to record successful analytics submission")
	}
	return nil
}

// assemble builds the payload from a consistent snapshot. The client
// metadata carries the fingerprint of the configuration used for this attempt.
func (s *Submitter) assemble(ctx context.Context, cfg *SubmissionConfiguration) (*Payload, *Snapshot, error) {
	ctx, span := submitterTracer.Start(ctx, "AssemblePayload")
	defer span.End()

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read metadata")
		return nil, nil, fmt.Errorf("failed to read analytics metadata: %w", err)
	}

	client := ClientMetadata{}
	if snap.ClientMetadata != nil {
		client = *snap.ClientMetadata
	}
	if cfg.ETag != "" {
		client.ETag = cfg.ETag
	}
	snap.ClientMetadata = &client

	payload := assemblePayload(snap, cfg, s.deferred, s.now())
	span.SetAttributes(attribute.Int("exposure_windows", len(payload.NewExposureWindows)))
	return payload, snap, nil
}

func (s *Submitter) submit(ctx context.Context, payload *Payload, token string, force bool) error {
	ctx, span := submitterTracer.Start(ctx, "Submit")
	defer span.End()

	if err := s.transport.Submit(ctx, payload, token, force); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failed")
		return err
	}
	return nil
}

// commit rotates the risk exposure snapshot, stores the client metadata,
// submitted payload and timestamp, clears the submitted test result and key
// submission records, and drops the submitted windows from the new queue.
// Records changed or windows queued after assembly stay stored.
func (s *Submitter) commit(ctx context.Context, attemptID string, payload *Payload, submitted *Snapshot) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: payload: %v", ErrEncodingFailed, err)
	}
	now := s.now()

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	var errs []error
	if submitted.CurrentRiskExposure != nil {
		errs = append(errs, save(ctx, s.store, keyPreviousRiskExposure, submitted.CurrentRiskExposure))
	}
	errs = append(errs,
		save(ctx, s.store, keyClientMetadata, submitted.ClientMetadata),
		save(ctx, s.store, keyLastSubmittedPayload, &SubmittedPayload{
			AttemptID:   attemptID,
			SubmittedAt: now,
			Payload:     encoded,
		}),
		save(ctx, s.store, keyLastSubmission, &now),
	)
	if len(payload.TestResultMetadataSet) > 0 {
		errs = append(errs, clearIfUnchanged(ctx, s.store, keyTestResult, submitted.TestResult))
	}
	if len(payload.KeySubmissionMetadataSet) > 0 {
		errs = append(errs, clearIfUnchanged(ctx, s.store, keyKeySubmission, submitted.KeySubmission))
	}

	if n := len(payload.NewExposureWindows); n > 0 {
		windows, err := load(ctx, s.store, keyExposureWindows)
		if err != nil {
			errs = append(errs, err)
		} else if windows != nil {
			if n > len(windows.NewExposureWindowsQueue) {
				n = len(windows.NewExposureWindowsQueue)
			}
			windows.NewExposureWindowsQueue = append([]SubmissionExposureWindow{}, windows.NewExposureWindowsQueue[n:]...)
			errs = append(errs, save(ctx, s.store, keyExposureWindows, windows))
			s.metrics.SetPendingExposureWindows(len(windows.NewExposureWindowsQueue))
		}
	}
	return errors.Join(errs...)
}

// clearIfUnchanged deletes f when it still holds the submitted record.
// Callers hold the store lock.
func clearIfUnchanged[T any](ctx context.Context, s *MetadataStore, f field[T], submitted *T) error {
	current, err := load(ctx, s, f)
	if err != nil || current == nil {
		return err
	}
	was, err := json.Marshal(submitted)
	if err != nil {
		return err
	}
	now, err := json.Marshal(current)
	if err != nil {
		return err
	}
	if !bytes.Equal(was, now) {
		return nil
	}
	return save[T](ctx, s, f, nil)
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrConsentDenied):
		return "consent"
	case errors.Is(err, ErrProbabilityNotMet):
		return "probability"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrOnboardedRecently):
		return "onboarded_recently"
	case errors.Is(err, ErrAppResetRecently):
		return "app_reset_recently"
	}
	return "unknown"
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrConfigUnavailable):
		return "config_unavailable"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrTransportFailed):
		return "transport_failed"
	case errors.Is(err, ErrEncodingFailed):
		return "encoding_failed"
	}
	return "internal"
}
