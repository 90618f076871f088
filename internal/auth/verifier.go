package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrAuth is matched by every credential failure
	ErrAuth = errors.New("authentication failed")
	// ErrExpiredToken is returned (wrapped in AuthError) when the token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrMissingToken is returned when no credential was presented
	ErrMissingToken = errors.New("authentication token required")

	errMissingKID = errors.New("token header has no kid")
)

// AuthError describes why a credential was refused. It matches ErrAuth and
// the underlying cause with errors.Is.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuth}
	}
	return []error{ErrAuth, e.Err}
}

func newAuthError(reason string, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}

// Identity is the authenticated principal of a connection or request
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// TokenVerifier turns a bearer credential into a subject identifier
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type Config struct {
	JWKSURL   string
	Issuer    string
	Audience  string
	Algorithm string
}

// Verifier validates RS256 (or the configured algorithm) tokens against a
// remote key set selected by the kid header.
type Verifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewVerifier builds a verifier backed by the JWKS endpoint in cfg. Keys are
// cached by kid and refreshed when an unknown kid shows up.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwks url is required")
	}
	k, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
	if err != nil {
		return nil, fmt.Errorf("failed to load key set from %s: %w", cfg.JWKSURL, err)
	}
	return NewVerifierWithKeyfunc(k.Keyfunc, cfg), nil
}

// NewVerifierWithKeyfunc builds a verifier around an existing key lookup
func NewVerifierWithKeyfunc(kf jwt.Keyfunc, cfg Config) *Verifier {
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodRS256.Alg()
	}
	return &Verifier{
		keyfunc: requireKID(kf),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{alg}),
			jwt.WithAudience(cfg.Audience),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

func requireKID(kf jwt.Keyfunc) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if kid, _ := token.Header["kid"].(string); kid == "" {
			return nil, errMissingKID
		}
		return kf(token)
	}
}

// Verify returns the token subject. Every failure is an *AuthError.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newAuthError("verification aborted", err)
	}

	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" {
		return "", newAuthError("authentication token required", ErrMissingToken)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", newAuthError("token has expired", ErrExpiredToken)
		}
		return "", newAuthError("invalid token", err)
	}
	if !token.Valid {
		return "", newAuthError("invalid token", nil)
	}
	if claims.Subject == "" {
		return "", newAuthError("token has no subject", nil)
	}

	return claims.Subject, nil
}
