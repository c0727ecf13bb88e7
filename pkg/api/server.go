package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ppac/pkg/analytics"
	"github.com/platinummonkey/ppac/pkg/auth"
	"github.com/platinummonkey/ppac/pkg/httputil"
	"github.com/platinummonkey/ppac/pkg/observability"
)

// DefaultMaxBodyBytes limits request bodies. Exposure window batches are the
// largest events.
const DefaultMaxBodyBytes = 1 << 20

// AnalyticsService is the part of analytics.Service the API calls
type AnalyticsService interface {
	Log(ctx context.Context, event analytics.Event) error
	TriggerSubmission(ctx context.Context, force bool) (*analytics.SubmissionReport, error)
	Status(ctx context.Context) (*analytics.Status, error)
	SetConsent(ctx context.Context, given bool) error
	RecordOnboarding(ctx context.Context, at time.Time) error
	RecordAppReset(ctx context.Context, at time.Time) error
	Reset(ctx context.Context) error
}

// Options holds the optional collaborators of a Server
type Options struct {
	Logger       logrus.FieldLogger
	Audit        *auth.AuditLogger
	Health       *observability.HealthChecker
	Metrics      *observability.Metrics
	Gatherer     prometheus.Gatherer
	MaxBodyBytes int64
	Now          func() time.Time

	// ForcedSubmissionLimit caps forced submissions per ForcedSubmissionPeriod.
	// Zero disables the limit.
	ForcedSubmissionLimit  int
	ForcedSubmissionPeriod time.Duration
}

// Server represents our API server
type Server struct {
	service AnalyticsService
	router  *mux.Router
	handler http.Handler
	logger  logrus.FieldLogger
	audit   *auth.AuditLogger
	now     func() time.Time
	forced  *rateLimiter
}

// NewServer creates a new API server
func NewServer(service AnalyticsService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Audit == nil {
		opts.Audit = auth.NewAuditLogger(opts.Logger)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		service: service,
		router:  mux.NewRouter(),
		logger:  opts.Logger.WithField("component", "api"),
		audit:   opts.Audit,
		now:     opts.Now,
	}
	if opts.ForcedSubmissionLimit > 0 {
		if opts.ForcedSubmissionPeriod <= 0 {
			opts.ForcedSubmissionPeriod = time.Hour
		}
		s.forced = newRateLimiter(opts.ForcedSubmissionLimit, opts.ForcedSubmissionPeriod, opts.Now)
	}
	s.setupRoutes(opts)

	middlewares := []httputil.Middleware{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	}
	if opts.Metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	middlewares = append(middlewares,
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
		httputil.ContentTypeMiddleware,
	)
	s.handler = httputil.Chain(middlewares...)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	s.router.HandleFunc("/api/v1/analytics/events", s.logEvent).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/analytics/submissions", s.triggerSubmission).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/analytics/status", s.getStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/analytics/consent", s.setConsent).Methods(http.MethodPut)
	s.router.HandleFunc("/api/v1/analytics/onboarding", s.recordOnboarding).Methods(http.MethodPut)
	s.router.HandleFunc("/api/v1/analytics/app-reset", s.recordAppReset).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/analytics", s.resetAnalytics).Methods(http.MethodDelete)

	if opts.Health != nil {
		s.router.HandleFunc("/healthz", opts.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/readyz", opts.Health.Readiness).Methods(http.MethodGet)
	}
	if opts.Gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(opts.Gatherer)).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the router so embedding applications can add routes
func (s *Server) Router() *mux.Router {
	return s.router
}
