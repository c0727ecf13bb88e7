// Package auth issues the tokens that authenticate analytics submissions and
// records an audit trail of privacy relevant actions.
//
// # Token Providers
//
// Both providers satisfy analytics.TokenProvider.
//
// StaticTokenProvider returns a preconfigured token:
//
//	tokens := auth.NewStaticTokenProvider(os.Getenv("PPAC_AUTH_STATIC_TOKEN"))
//
// OAuth2TokenProvider runs the client credentials grant and caches the token
// until it expires. The token endpoint can be discovered from an OpenID
// Connect issuer:
//
//	tokens, err := auth.NewOAuth2TokenProvider(ctx, auth.OAuth2Config{
//		IssuerURL:    "https://auth.example.org/realms/ppa",
//		ClientID:     "agent",
//		ClientSecret: secret,
//		Scopes:       []string{"ppa.submit"},
//	}, logger)
//
// Tokens never appear in logs unredacted; see Redact.
//
// # Audit Logging
//
// AuditLogger writes consent changes, data resets and forced submissions as
// structured log entries:
//
//	audit := auth.NewAuditLogger(logger)
//	audit.LogFromRequest(r, auth.ActionConsentGrant, "consent", "", auth.StatusSuccess, nil)
//
// # Related Packages
//
//   - pkg/analytics: consumes TokenProvider
//   - pkg/api: writes audit events for HTTP requests
package auth
