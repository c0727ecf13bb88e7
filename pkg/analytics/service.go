package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/ppac/pkg/async"
	"github.com/platinummonkey/ppac/pkg/observability"
	"github.com/platinummonkey/ppac/pkg/storage"
)

// Dependencies are the collaborators a Service is built from
type Dependencies struct {
	KV        storage.KV
	Config    ConfigurationProvider
	Tokens    TokenProvider
	Transport Transport
	Logger    logrus.FieldLogger
	Metrics   *observability.Metrics
}

type options struct {
	now               func() time.Time
	draw              func() float64
	hasher            WindowHasher
	deferred          []Category
	submissionTimeout time.Duration
	autoSubmit        bool
}

// Option configures a Service
type Option func(*options)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRandomSource replaces the eligibility gate's uniform draw in [0,1)
func WithRandomSource(draw func() float64) Option {
	return func(o *options) { o.draw = draw }
}

// WithWindowHasher replaces the exposure window fingerprint
func WithWindowHasher(h WindowHasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithDeferredCategories leaves the given categories out of every payload
func WithDeferredCategories(categories ...Category) Option {
	return func(o *options) { o.deferred = append(o.deferred, categories...) }
}

// WithSubmissionTimeout bounds each background submission attempt
func WithSubmissionTimeout(d time.Duration) Option {
	return func(o *options) { o.submissionTimeout = d }
}

// WithAutoSubmit controls whether Log triggers a background submission
func WithAutoSubmit(enabled bool) Option {
	return func(o *options) { o.autoSubmit = enabled }
}

// Service is the entry point for application code: it merges logged events
// into the store and triggers submissions.
type Service struct {
	store     *MetadataStore
	submitter *Submitter
	dedup     *WindowDeduplicator
	now       func() time.Time
	logger    logrus.FieldLogger
	metrics   *observability.Metrics

	autoSubmit bool
	background *async.Group
	inflight   singleflight.Group
}

// NewService wires a Service. Every collaborator is required except the
// logger and metrics.
func NewService(deps Dependencies, opts ...Option) (*Service, error) {
	o := options{
		now:               time.Now,
		submissionTimeout: time.Minute,
		autoSubmit:        true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := NewMetadataStore(deps.KV)
	if err != nil {
		return nil, err
	}
	if deps.Config == nil || deps.Tokens == nil || deps.Transport == nil {
		return nil, errors.New("analytics: configuration, token and transport providers are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "analytics")

	deferred := make(map[Category]bool, len(o.deferred))
	for _, c := range o.deferred {
		deferred[c] = true
	}

	return &Service{
		store: store,
		submitter: &Submitter{
			store:     store,
			config:    deps.Config,
			tokens:    deps.Tokens,
			transport: deps.Transport,
			gate:      NewEligibilityGate(o.draw, logger),
			deferred:  deferred,
			now:       o.now,
			logger:    logger,
			metrics:   deps.Metrics,
		},
		dedup:      NewWindowDeduplicator(o.hasher),
		now:        o.now,
		logger:     logger,
		metrics:    deps.Metrics,
		autoSubmit: o.autoSubmit,
		background: async.NewGroup(logger, o.submissionTimeout),
	}, nil
}

// Log merges event into the stored record for its category and, unless
// disabled, triggers a submission attempt in the background.
//
// A nil error means the event was applied. IsMergeSkipped errors mean it was
// deliberately not applied. Other errors are storage or encoding failures;
// for registrations and exposure windows the record may still have been
// partially applied.
func (s *Service) Log(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", ErrNotApplicable)
	}
	log := s.logger.WithField("category", string(event.Category()))

	err := s.apply(ctx, event)
	switch {
	case err == nil:
		s.metrics.RecordMerge(string(event.Category()), "applied")
		log.Debug("Analytics event applied")
	case IsMergeSkipped(err):
		s.metrics.RecordMerge(string(event.Category()), "skipped")
		log.WithError(err).Info("Analytics event skipped")
	default:
		s.metrics.RecordMerge(string(event.Category()), "failed")
		log.WithError(err).Warn("Analytics event failed")
	}

	if s.autoSubmit {
		s.triggerInBackground(ctx)
	}
	return err
}

func (s *Service) apply(ctx context.Context, event Event) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	switch e := event.(type) {
	case UserMetadataUpdate:
		return save(ctx, s.store, keyUserMetadata, &e.Metadata)

	case ClientMetadataUpdate:
		return save(ctx, s.store, keyClientMetadata, &e.Metadata)

	case RiskExposureEvent:
		previous, err := load(ctx, s.store, keyPreviousRiskExposure)
		if err != nil {
			return err
		}
		next, err := MergeRiskExposure(previous, e)
		return persist(ctx, s.store, keyCurrentRiskExposure, next, err)

	case TestResultEvent:
		return s.applyTestResult(ctx, e)

	case KeySubmissionEvent:
		stored, err := load(ctx, s.store, keyKeySubmission)
		if err != nil {
			return err
		}
		next, err := MergeKeySubmission(stored, e)
		return persist(ctx, s.store, keyKeySubmission, next, err)

	case ExposureWindowsObserved:
		stored, err := load(ctx, s.store, keyExposureWindows)
		if err != nil {
			return err
		}
		result, err := s.dedup.Process(stored, e.Windows, s.now())
		s.metrics.RecordExposureWindows(result.Added, result.Duplicates, result.Purged, result.Unhashed,
			len(result.Metadata.NewExposureWindowsQueue))
		return persist(ctx, s.store, keyExposureWindows, result.Metadata, err)

	case RiskCalculationUpdate:
		stored, err := load(ctx, s.store, keySubmissionContext)
		if err != nil {
			return err
		}
		next, err := MergeSubmissionContext(stored, e)
		return persist(ctx, s.store, keySubmissionContext, next, err)
	}
	return fmt.Errorf("%w: unsupported event %T", ErrNotApplicable, event)
}

func (s *Service) applyTestResult(ctx context.Context, e TestResultEvent) error {
	stored, err := load(ctx, s.store, keyTestResult)
	if err != nil {
		return err
	}
	sc, err := load(ctx, s.store, keySubmissionContext)
	if err != nil {
		return err
	}

	next, mergeErr := MergeTestResult(stored, e, MergeContext{Now: s.now(), Context: sc})
	if err := persist(ctx, s.store, keyTestResult, next, mergeErr); err != nil || next == nil {
		return err
	}

	update, ok := e.(UpdateTestResult)
	if !ok || (update.Result != TestResultPositive && update.Result != TestResultNegative) {
		return nil
	}
	if sc == nil {
		sc = &SubmissionContext{}
	}
	sc.TestResultReceivedAt = timePtr(s.now())
	return save(ctx, s.store, keySubmissionContext, sc)
}

// persist writes a non-nil merge result and reports both the merge and write errors
func persist[T any](ctx context.Context, s *MetadataStore, f field[T], next *T, mergeErr error) error {
	if next == nil {
		return mergeErr
	}
	if err := save(ctx, s, f, next); err != nil {
		return errors.Join(mergeErr, err)
	}
	return mergeErr
}

// TriggerSubmission runs a submission attempt and waits for its outcome.
// Concurrent calls with the same force flag share one attempt.
func (s *Service) TriggerSubmission(ctx context.Context, force bool) (*SubmissionReport, error) {
	key := "submit"
	if force {
		key = "submit-forced"
	}

	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		// Detached so one caller's cancellation does not abort the shared attempt
		return s.submitter.AttemptSubmission(context.WithoutCancel(ctx), force)
	})

	select {
	case res := <-ch:
		report, _ := res.Val.(*SubmissionReport)
		return report, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) triggerInBackground(ctx context.Context) {
	s.background.Go(context.WithoutCancel(ctx), "analytics submission", func(ctx context.Context) error {
		_, err := s.TriggerSubmission(ctx, false)
		if err == nil || IsSkip(err) {
			return nil
		}
		return err
	})
}

// SetConsent records the user's analytics consent
func (s *Service) SetConsent(ctx context.Context, given bool) error {
	if err := s.store.SetConsent(ctx, given); err != nil {
		return err
	}
	s.logger.WithField("consent", given).Info("Analytics consent updated")
	return nil
}

// RecordOnboarding records when the user completed onboarding
func (s *Service) RecordOnboarding(ctx context.Context, at time.Time) error {
	return s.store.SetOnboardedDate(ctx, at)
}

// RecordAppReset records when the application was reset
func (s *Service) RecordAppReset(ctx context.Context, at time.Time) error {
	return s.store.SetLastAppReset(ctx, at)
}

// Reset deletes every stored analytics record
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return err
	}
	s.metrics.SetPendingExposureWindows(0)
	s.logger.Info("Analytics data reset")
	return nil
}

// Snapshot returns every stored record
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	return s.store.Snapshot(ctx)
}

// Wait blocks until background submissions started so far have finished
func (s *Service) Wait(ctx context.Context) error {
	return s.background.Wait(ctx)
}

// Close stops background submissions and waits for the running one
func (s *Service) Close(ctx context.Context) error {
	return s.background.Close(ctx)
}
