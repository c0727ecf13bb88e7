package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ppac/pkg/observability"
	"github.com/platinummonkey/ppac/pkg/storage"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "PPAC_"

// Config holds all agent configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config `envPrefix:"STORAGE_"`

	// Submission scheduling and transport
	Submission SubmissionConfig `envPrefix:"SUBMISSION_"`

	// Token acquisition
	Auth AuthConfig `envPrefix:"AUTH_"`

	// Source of the submission parameters
	AppConfig AppConfigSource `envPrefix:"APPCONFIG_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"127.0.0.1"`
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"75s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `env:"HEALTH_PORT" envDefault:"9090"`

	// Forced submissions allowed per period. Zero disables the limit.
	ForcedSubmissionLimit  int           `env:"FORCED_SUBMISSION_LIMIT" envDefault:"6"`
	ForcedSubmissionPeriod time.Duration `env:"FORCED_SUBMISSION_PERIOD" envDefault:"1h"`
}

// SubmissionConfig controls when and where payloads are sent
type SubmissionConfig struct {
	// Endpoint receives the payload via HTTP POST
	Endpoint string `env:"ENDPOINT"`

	// Encoding of the request body: "json" or "protobuf"
	Encoding string `env:"ENCODING" envDefault:"json"`

	// Schedule is a cron spec for periodic attempts. Empty disables them.
	Schedule string `env:"SCHEDULE" envDefault:"@every 1h"`

	// Timeout bounds a single attempt, including the transport call
	Timeout time.Duration `env:"TIMEOUT" envDefault:"1m"`

	// AutoSubmit triggers an attempt after every logged event
	AutoSubmit bool `env:"AUTO_SUBMIT" envDefault:"true"`

	// DeferredCategories are left out of every payload
	DeferredCategories []string `env:"DEFERRED_CATEGORIES" envSeparator:","`

	// Transport attempts per submission. Retries cover network errors, 5xx
	// and 429 responses and share one idempotency key.
	MaxAttempts       int           `env:"MAX_ATTEMPTS" envDefault:"1"`
	RetryInitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"1s"`
	RetryMaxDelay     time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`

	// SigningSecret, when set, signs every request body with HMAC-SHA256
	SigningSecret string `env:"SIGNING_SECRET"`
}

// Token provider modes
const (
	AuthModeStatic = "static"
	AuthModeOAuth2 = "oauth2"
)

// AuthConfig selects how submission tokens are obtained
type AuthConfig struct {
	Mode string `env:"MODE" envDefault:"static"`

	// Static mode
	StaticToken string `env:"STATIC_TOKEN"`

	// OAuth2 client credentials mode. TokenURL may be left empty when
	// IssuerURL points at an OpenID Connect issuer.
	IssuerURL    string   `env:"ISSUER_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// App configuration sources
const (
	AppConfigStatic = "static"
	AppConfigFile   = "file"
)

// AppConfigSource selects where the submission parameters come from
type AppConfigSource struct {
	Source string `env:"SOURCE" envDefault:"static"`

	// File mode: YAML file, reloaded on change
	File string `env:"FILE"`

	// Static mode
	SubmissionProbability                        float64 `env:"SUBMISSION_PROBABILITY" envDefault:"1"`
	ETag                                         string  `env:"ETAG"`
	HoursSinceTestRegistrationToSubmitTestResult int     `env:"HOURS_SINCE_TEST_REGISTRATION_TO_SUBMIT_TEST_RESULT" envDefault:"0"`
	HoursSinceTestResultToSubmitKeySubmission    int     `env:"HOURS_SINCE_TEST_RESULT_TO_SUBMIT_KEY_SUBMISSION" envDefault:"0"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// OpenTelemetry
	OTelEnabled        bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint       string `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	OTelServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"ppac-agent"`
	OTelServiceVersion string `env:"OTEL_SERVICE_VERSION" envDefault:"1.0.0"`
	OTelInsecure       bool   `env:"OTEL_INSECURE" envDefault:"true"` // Use insecure gRPC connection
}

// OTel converts the settings for observability.InitTracing
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// LoadConfig loads configuration from PPAC_ environment variables
func LoadConfig() (*Config, error) {
	return load(env.Options{Prefix: EnvPrefix})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	// Validate submission config
	if c.Submission.Endpoint == "" {
		return fmt.Errorf("submission endpoint is required")
	}
	if u, err := url.Parse(c.Submission.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid submission endpoint: %s", c.Submission.Endpoint)
	}
	if c.Submission.Encoding != "json" && c.Submission.Encoding != "protobuf" {
		return fmt.Errorf("invalid submission encoding: %s (must be json or protobuf)", c.Submission.Encoding)
	}
	if c.Submission.Schedule != "" {
		if _, err := cron.ParseStandard(c.Submission.Schedule); err != nil {
			return fmt.Errorf("invalid submission schedule %q: %w", c.Submission.Schedule, err)
		}
	}
	if c.Submission.Timeout <= 0 {
		return fmt.Errorf("submission timeout must be positive")
	}
	if c.Submission.MaxAttempts < 1 {
		return fmt.Errorf("submission max attempts must be at least 1")
	}

	// Validate auth config
	switch c.Auth.Mode {
	case AuthModeStatic:
		if c.Auth.StaticToken == "" {
			return fmt.Errorf("static token is required for static auth")
		}
	case AuthModeOAuth2:
		if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			return fmt.Errorf("client ID and secret are required for oauth2 auth")
		}
		if c.Auth.TokenURL == "" && c.Auth.IssuerURL == "" {
			return fmt.Errorf("token URL or issuer URL is required for oauth2 auth")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be static or oauth2)", c.Auth.Mode)
	}

	// Validate app config source
	switch c.AppConfig.Source {
	case AppConfigStatic:
		if p := c.AppConfig.SubmissionProbability; p < 0 || p > 1 {
			return fmt.Errorf("submission probability must be within [0,1], got %v", p)
		}
	case AppConfigFile:
		if c.AppConfig.File == "" {
			return fmt.Errorf("app config file is required for file source")
		}
	default:
		return fmt.Errorf("invalid app config source: %s (must be static or file)", c.AppConfig.Source)
	}

	// Validate observability config
	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}
	if f := c.Observability.LogFormat; f != observability.FormatJSON && f != observability.FormatText {
		return fmt.Errorf("invalid log format: %s (must be json or text)", f)
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}
