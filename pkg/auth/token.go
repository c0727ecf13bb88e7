package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNoToken is returned when a provider has no token to hand out
var ErrNoToken = errors.New("auth: no token available")

// redactedPrefixLength is how much of a token Redact keeps
const redactedPrefixLength = 8

// StaticTokenProvider hands out a preconfigured token
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider creates a provider for a fixed token
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// AcquireToken returns the configured token
func (p *StaticTokenProvider) AcquireToken(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", ErrNoToken
	}
	return p.token, nil
}

// OAuth2Config configures the client credentials provider
type OAuth2Config struct {
	// TokenURL of the authorization server. When empty, IssuerURL is used
	// to discover it.
	TokenURL     string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// OAuth2TokenProvider obtains tokens with the OAuth2 client credentials grant
// and reuses them until shortly before they expire
type OAuth2TokenProvider struct {
	config *clientcredentials.Config
	logger logrus.FieldLogger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewOAuth2TokenProvider creates a client credentials provider. Discovery
// runs once here when only an issuer is configured.
func NewOAuth2TokenProvider(ctx context.Context, cfg OAuth2Config, logger logrus.FieldLogger) (*OAuth2TokenProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client ID and secret are required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		if cfg.IssuerURL == "" {
			return nil, fmt.Errorf("token URL or issuer URL is required")
		}
		discovered, err := DiscoverTokenURL(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, err
		}
		tokenURL = discovered
	}

	return &OAuth2TokenProvider{
		config: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       cfg.Scopes,
		},
		logger: logger.WithField("component", "oauth2_token_provider"),
	}, nil
}

// AcquireToken returns a cached token while it is valid and requests a new
// one otherwise
func (p *OAuth2TokenProvider) AcquireToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token.Valid() {
		return p.token.AccessToken, nil
	}

	token, err := p.config.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain token: %w", err)
	}
	if token.AccessToken == "" {
		return "", ErrNoToken
	}
	p.token = token

	fields := logrus.Fields{"token": Redact(token.AccessToken)}
	if !token.Expiry.IsZero() {
		fields["expires_in"] = time.Until(token.Expiry).Round(time.Second).String()
	}
	p.logger.WithFields(fields).Debug("Acquired submission token")
	return token.AccessToken, nil
}

// DiscoverTokenURL reads the token endpoint from an OpenID Connect issuer's
// discovery document
func DiscoverTokenURL(ctx context.Context, issuerURL string) (string, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return "", fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	tokenURL := provider.Endpoint().TokenURL
	if tokenURL == "" {
		return "", fmt.Errorf("issuer %s does not advertise a token endpoint", issuerURL)
	}
	return tokenURL, nil
}

// Redact shortens a token for logs
// Example: eyJhbGciOiJSUzI1NiJ9... -> eyJhbGci...
func Redact(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= redactedPrefixLength {
		return strings.Repeat("*", len(token))
	}
	return token[:redactedPrefixLength] + "..."
}
