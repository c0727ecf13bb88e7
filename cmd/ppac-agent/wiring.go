package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ppac/pkg/analytics"
	"github.com/platinummonkey/ppac/pkg/appconfig"
	"github.com/platinummonkey/ppac/pkg/auth"
	"github.com/platinummonkey/ppac/pkg/config"
	"github.com/platinummonkey/ppac/pkg/observability"
	"github.com/platinummonkey/ppac/pkg/transport"
)

// tokenProvider builds the configured submission token source
func tokenProvider(ctx context.Context, cfg config.AuthConfig, logger logrus.FieldLogger) (analytics.TokenProvider, error) {
	switch cfg.Mode {
	case config.AuthModeStatic:
		return auth.NewStaticTokenProvider(cfg.StaticToken), nil
	case config.AuthModeOAuth2:
		return auth.NewOAuth2TokenProvider(ctx, auth.OAuth2Config{
			TokenURL:     cfg.TokenURL,
			IssuerURL:    cfg.IssuerURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
		}, logger)
	}
	return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
}

// configurationProvider builds the submission parameter source. A file
// provider is returned separately so the caller can start watching it.
func configurationProvider(cfg config.AppConfigSource, logger logrus.FieldLogger) (analytics.ConfigurationProvider, *appconfig.FileProvider, error) {
	switch cfg.Source {
	case config.AppConfigStatic:
		p, err := appconfig.NewStaticProvider(analytics.SubmissionConfiguration{
			SubmissionProbability: cfg.SubmissionProbability,
			ETag:                  cfg.ETag,
			HoursSinceTestRegistrationToSubmitTestResultMetadata: cfg.HoursSinceTestRegistrationToSubmitTestResult,
			HoursSinceTestResultToSubmitKeySubmissionMetadata:    cfg.HoursSinceTestResultToSubmitKeySubmission,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	case config.AppConfigFile:
		p, err := appconfig.NewFileProvider(cfg.File, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	}
	return nil, nil, fmt.Errorf("unknown app config source %q", cfg.Source)
}

func httpTransport(cfg config.SubmissionConfig, logger logrus.FieldLogger) (*transport.HTTPTransport, error) {
	return transport.NewHTTPTransport(transport.Config{
		Endpoint: cfg.Endpoint,
		Encoding: cfg.Encoding,
		Timeout:  cfg.Timeout,
		Retry: transport.RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
		},
		SigningSecret: cfg.SigningSecret,
	}, logger)
}

// serviceOptions maps submission settings to analytics options
func serviceOptions(cfg config.SubmissionConfig) ([]analytics.Option, error) {
	categories, err := deferredCategories(cfg.DeferredCategories)
	if err != nil {
		return nil, err
	}
	return []analytics.Option{
		analytics.WithSubmissionTimeout(cfg.Timeout),
		analytics.WithAutoSubmit(cfg.AutoSubmit),
		analytics.WithDeferredCategories(categories...),
	}, nil
}

var deferrableCategories = map[analytics.Category]bool{
	analytics.CategoryUserMetadata:    true,
	analytics.CategoryRiskExposure:    true,
	analytics.CategoryClientMetadata:  true,
	analytics.CategoryTestResult:      true,
	analytics.CategoryKeySubmission:   true,
	analytics.CategoryExposureWindows: true,
}

func deferredCategories(names []string) ([]analytics.Category, error) {
	categories := make([]analytics.Category, 0, len(names))
	for _, name := range names {
		c := analytics.Category(name)
		if !deferrableCategories[c] {
			return nil, fmt.Errorf("unknown payload category %q", name)
		}
		categories = append(categories, c)
	}
	return categories, nil
}

// submitter is the part of analytics.Service the scheduler calls
type submitter interface {
	TriggerSubmission(ctx context.Context, force bool) (*analytics.SubmissionReport, error)
}

// scheduleSubmissions adds a periodic submission attempt to c. The gate
// decides whether an attempt actually submits.
func scheduleSubmissions(c *cron.Cron, spec string, svc submitter, timeout time.Duration, logger logrus.FieldLogger) error {
	_, err := c.AddFunc(spec, func() {
		defer observability.RecoverPanic(logger, "scheduled submission")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		report, err := svc.TriggerSubmission(ctx, false)
		log := logger.WithField("schedule", spec)
		if report != nil {
			log = log.WithFields(logrus.Fields{"attempt_id": report.AttemptID, "state": report.State})
		}
		switch {
		case err == nil:
			log.Info("Scheduled submission completed")
		case analytics.IsSkip(err):
			log.WithField("reason", err.Error()).Debug("Scheduled submission skipped")
		default:
			log.WithError(err).Warn("Scheduled submission failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule submissions: %w", err)
	}
	return nil
}
