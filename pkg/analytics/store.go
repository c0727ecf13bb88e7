package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/ppac/pkg/storage"
)

// field is a typed key in the metadata store
type field[T any] struct {
	key string
}

var (
	keyUserMetadata         = field[UserMetadata]{"analytics.userMetadata"}
	keyCurrentRiskExposure  = field[RiskExposureMetadata]{"analytics.currentRiskExposureMetadata"}
	keyPreviousRiskExposure = field[RiskExposureMetadata]{"analytics.previousRiskExposureMetadata"}
	keyClientMetadata       = field[ClientMetadata]{"analytics.clientMetadata"}
	keyTestResult           = field[TestResultMetadata]{"analytics.testResultMetadata"}
	keyKeySubmission        = field[KeySubmissionMetadata]{"analytics.keySubmissionMetadata"}
	keyExposureWindows      = field[ExposureWindowsMetadata]{"analytics.exposureWindowsMetadata"}
	keySubmissionContext    = field[SubmissionContext]{"analytics.submissionContext"}
	keyLastSubmission       = field[time.Time]{"analytics.lastSubmissionAnalytics"}
	keyLastAppReset         = field[time.Time]{"analytics.lastAppReset"}
	keyOnboardedDate        = field[time.Time]{"analytics.onboardedDate"}
	keyConsent              = field[bool]{"analytics.consent"}
	keyLastSubmittedPayload = field[SubmittedPayload]{"analytics.lastSubmittedPayload"}
)

// allKeys is every key Reset removes
var allKeys = []string{
	keyUserMetadata.key,
	keyCurrentRiskExposure.key,
	keyPreviousRiskExposure.key,
	keyClientMetadata.key,
	keyTestResult.key,
	keyKeySubmission.key,
	keyExposureWindows.key,
	keySubmissionContext.key,
	keyLastSubmission.key,
	keyLastAppReset.key,
	keyOnboardedDate.key,
	keyConsent.key,
	keyLastSubmittedPayload.key,
}

// SubmittedPayload is the diagnostic copy of the last successful submission
type SubmittedPayload struct {
	AttemptID   string          `json:"attemptId"`
	SubmittedAt time.Time       `json:"submittedAt"`
	Payload     json.RawMessage `json:"payload"`
}

// MetadataStore reads and writes typed analytics records on an opaque KV.
// Read-modify-write sequences are serialized by an internal mutex; the
// package-level load and save helpers assume the caller holds it.
type MetadataStore struct {
	kv storage.KV
	mu sync.Mutex
}

// NewMetadataStore binds the typed store to a KV backend
func NewMetadataStore(kv storage.KV) (*MetadataStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("analytics: metadata store requires a KV backend")
	}
	return &MetadataStore{kv: kv}, nil
}

func load[T any](ctx context.Context, s *MetadataStore, f field[T]) (*T, error) {
	data, err := s.kv.Get(ctx, f.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.key, err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", f.key, err)
	}
	return &value, nil
}

// save writes value, or deletes the key when value is nil
func save[T any](ctx context.Context, s *MetadataStore, f field[T], value *T) error {
	if value == nil {
		return s.kv.Delete(ctx, f.key)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.key, err)
	}
	if err := s.kv.Set(ctx, f.key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.key, err)
	}
	return nil
}

// Snapshot is a consistent read of every stored record. Nil fields were never written.
type Snapshot struct {
	Consent              bool                     `json:"consent"`
	UserMetadata         *UserMetadata            `json:"userMetadata,omitempty"`
	CurrentRiskExposure  *RiskExposureMetadata    `json:"currentRiskExposureMetadata,omitempty"`
	PreviousRiskExposure *RiskExposureMetadata    `json:"previousRiskExposureMetadata,omitempty"`
	ClientMetadata       *ClientMetadata          `json:"clientMetadata,omitempty"`
	TestResult           *TestResultMetadata      `json:"testResultMetadata,omitempty"`
	KeySubmission        *KeySubmissionMetadata   `json:"keySubmissionMetadata,omitempty"`
	ExposureWindows      *ExposureWindowsMetadata `json:"exposureWindowsMetadata,omitempty"`
	Context              *SubmissionContext       `json:"submissionContext,omitempty"`
	LastSubmission       *time.Time               `json:"lastSubmissionAnalytics,omitempty"`
	LastAppReset         *time.Time               `json:"lastAppReset,omitempty"`
	OnboardedDate        *time.Time               `json:"onboardedDate,omitempty"`
	LastSubmittedPayload *SubmittedPayload        `json:"lastSubmittedPayload,omitempty"`
}

func (s *MetadataStore) snapshot(ctx context.Context) (*Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	consent, err := load(ctx, s, keyConsent)
	if err != nil {
		return nil, err
	}
	snap.Consent = consent != nil && *consent

	if snap.UserMetadata, err = load(ctx, s, keyUserMetadata); err != nil {
		return nil, err
	}
	if snap.CurrentRiskExposure, err = load(ctx, s, keyCurrentRiskExposure); err != nil {
		return nil, err
	}
	if snap.PreviousRiskExposure, err = load(ctx, s, keyPreviousRiskExposure); err != nil {
		return nil, err
	}
	if snap.ClientMetadata, err = load(ctx, s, keyClientMetadata); err != nil {
		return nil, err
	}
	if snap.TestResult, err = load(ctx, s, keyTestResult); err != nil {
		return nil, err
	}
	if snap.KeySubmission, err = load(ctx, s, keyKeySubmission); err != nil {
		return nil, err
	}
	if snap.ExposureWindows, err = load(ctx, s, keyExposureWindows); err != nil {
		return nil, err
	}
	if snap.Context, err = load(ctx, s, keySubmissionContext); err != nil {
		return nil, err
	}
	if snap.LastSubmission, err = load(ctx, s, keyLastSubmission); err != nil {
		return nil, err
	}
	if snap.LastAppReset, err = load(ctx, s, keyLastAppReset); err != nil {
		return nil, err
	}
	if snap.OnboardedDate, err = load(ctx, s, keyOnboardedDate); err != nil {
		return nil, err
	}
	if snap.LastSubmittedPayload, err = load(ctx, s, keyLastSubmittedPayload); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Snapshot reads every record under the store lock
func (s *MetadataStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(ctx)
}

// SetConsent records whether the user agreed to analytics submission
func (s *MetadataStore) SetConsent(ctx context.Context, given bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(ctx, s, keyConsent, &given)
}

// SetOnboardedDate records when the user finished onboarding
func (s *MetadataStore) SetOnboardedDate(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(ctx, s, keyOnboardedDate, &at)
}

// SetLastAppReset records when the app was last reset
func (s *MetadataStore) SetLastAppReset(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(ctx, s, keyLastAppReset, &at)
}

// DeleteAll removes every analytics key
func (s *MetadataStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, allKeys...); err != nil {
		return fmt.Errorf("failed to delete analytics keys: %w", err)
	}
	return nil
}
