package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized classifies any bearer-token rejection.
var ErrUnauthorized = errors.New("unauthorized")

// AuthConfig controls Bearer token validation for the /api/ routes.
type AuthConfig struct {
	// JWKSURL is the JSON Web Key Set endpoint used to resolve signing keys.
	JWKSURL string
	// Issuer, when non-empty, must match the token's iss claim.
	Issuer string
	// Audience, when non-empty, must appear in the token's aud claim.
	Audience string
	// Leeway absorbs clock skew when validating time claims. Default 60s.
	Leeway time.Duration
}

// Authenticator validates RS256 bearer tokens against an auto-refreshing
// JWKS.
type Authenticator struct {
	cfg    AuthConfig
	parser *jwt.Parser
	keys   keyfunc.Keyfunc
}

// NewAuthenticator fetches the JWKS and builds a validating parser. The
// keyfunc refreshes keys in the background for the lifetime of ctx.
func NewAuthenticator(ctx context.Context, cfg AuthConfig) (*Authenticator, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}

	keys, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Authenticator{cfg: cfg, parser: jwt.NewParser(opts...), keys: keys}, nil
}

// Authenticate checks the request's Authorization header. A nil return
// means the token verified.
func (a *Authenticator) Authenticate(r *http.Request) error {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		return fmt.Errorf("%w: missing authorization header", ErrUnauthorized)
	}
	scheme, token, found := strings.Cut(raw, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return fmt.Errorf("%w: malformed authorization header", ErrUnauthorized)
	}
	if _, err := a.parser.Parse(token, a.keys.Keyfunc); err != nil {
		return fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	return nil
}
