package transport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/ppac/pkg/analytics"
)

// Request headers. Every request of one Submit call carries the same
// idempotency key so the server can drop a retried payload it already stored;
// HeaderAttempt numbers the requests sent under that key.
const (
	HeaderForce          = "X-PPAC-Force"
	HeaderSignature      = "X-PPAC-Signature"
	HeaderAttempt        = "X-PPAC-Attempt"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// maxErrorBody is how much of a failed response is kept in the error
const maxErrorBody = 512

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// isRetryable reports whether a failed request may succeed when sent again.
// Client errors other than 429 are final.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Config configures the HTTP transport
type Config struct {
	Endpoint string
	Encoding string
	Timeout  time.Duration
	Retry    RetryConfig

	// SigningSecret, when set, adds an HMAC-SHA256 signature of the body
	SigningSecret string
}

// HTTPTransport posts payloads to the analytics server
type HTTPTransport struct {
	config Config
	client *http.Client
	retry  *RetryPolicy
	logger logrus.FieldLogger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewHTTPTransport creates a transport. The HTTP client is instrumented with
// OpenTelemetry so each request joins the submission trace.
func NewHTTPTransport(cfg Config, logger logrus.FieldLogger) (*HTTPTransport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingJSON
	}
	if cfg.Encoding != EncodingJSON && cfg.Encoding != EncodingProtobuf {
		return nil, fmt.Errorf("unsupported encoding %q", cfg.Encoding)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &HTTPTransport{
		config: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retry:  NewRetryPolicy(cfg.Retry),
		logger: logger.WithField("component", "transport"),
		sleep:  sleepContext,
	}, nil
}

// Submit implements analytics.Transport. Server errors and network failures
// are retried with exponential backoff; client errors are returned at once.
func (t *HTTPTransport) Submit(ctx context.Context, payload *analytics.Payload, token string, force bool) error {
	body, contentType, err := encodePayload(payload, t.config.Encoding)
	if err != nil {
		return err
	}

	key := uuid.NewString()
	for attempt := 1; ; attempt++ {
		err = t.send(ctx, body, contentType, token, key, force, attempt)
		if err == nil {
			return nil
		}
		if !t.retry.ShouldRetry(attempt, err) {
			return err
		}

		delay := t.retry.NextRetryDelay(attempt)
		t.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Submission request failed, retrying")
		if err := t.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (t *HTTPTransport) send(ctx context.Context, body []byte, contentType, token, key string, force bool, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(HeaderIdempotencyKey, key)
	req.Header.Set(HeaderAttempt, fmt.Sprint(attempt))
	if force {
		req.Header.Set(HeaderForce, "true")
	}

	// Add signature if secret is configured
	if t.config.SigningSecret != "" {
		req.Header.Set(HeaderSignature, generateSignature(body, t.config.SigningSecret))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// VerifySignature verifies a body signature
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature generates HMAC-SHA256 signature
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
