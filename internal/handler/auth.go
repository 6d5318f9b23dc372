package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/config"
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Authenticator verifies HS256 bearer tokens. A user token's subject is the acting
// user id. Service tokens carry the service audience and may only submit outcomes.
type Authenticator struct {
	secret          []byte
	issuer          string
	serviceAudience string
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{
		secret:          []byte(cfg.JWTSecret),
		issuer:          cfg.Issuer,
		serviceAudience: cfg.ServiceAudience,
	}
}

// Issue signs a user token for userID. Used by tooling and tests.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	return a.sign(userID, nil, ttl)
}

// IssueService signs a service token for the pick resolution subsystem.
func (a *Authenticator) IssueService(name string, ttl time.Duration) (string, error) {
	return a.sign(name, jwt.ClaimStrings{a.serviceAudience}, ttl)
}

func (a *Authenticator) sign(subject string, audience jwt.ClaimStrings, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		Audience:  audience,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (a *Authenticator) parse(token string, extra ...jwt.ParserOption) (jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	opts = append(opts, extra...)

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return claims, err
	}
	if claims.Subject == "" {
		return claims, errors.New("token has no subject")
	}
	return claims, nil
}

// Verify parses a user token and returns its subject. Service tokens are rejected.
func (a *Authenticator) Verify(token string) (string, error) {
	claims, err := a.parse(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMissingIdentity, err)
	}
	if slices.Contains(claims.Audience, a.serviceAudience) {
		return "", fmt.Errorf("%w: service token used as a user", domain.ErrMissingIdentity)
	}
	return claims.Subject, nil
}

// VerifyService parses a service token and returns the service name.
func (a *Authenticator) VerifyService(token string) (string, error) {
	claims, err := a.parse(token, jwt.WithAudience(a.serviceAudience))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrNotService, err)
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

// RequireUser rejects requests without a valid user bearer token
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, APIResponse{Error: domain.ErrMissingIdentity.Error()})
			return
		}

		userID, err := a.Verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, APIResponse{Error: "invalid or expired token"})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// RequireService only admits the pick resolution subsystem. A valid user token
// is refused with 403.
func (a *Authenticator) RequireService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, APIResponse{Error: domain.ErrNotService.Error()})
			return
		}

		if _, err := a.VerifyService(token); err != nil {
			status := http.StatusUnauthorized
			if _, userErr := a.Verify(token); userErr == nil {
				status = http.StatusForbidden
			}
			writeJSON(w, status, APIResponse{Error: domain.ErrNotService.Error()})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithUserID stores the acting user id in ctx
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFrom returns the acting user id, or domain.ErrMissingIdentity.
func UserIDFrom(ctx context.Context) (string, error) {
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", domain.ErrMissingIdentity
	}
	return id, nil
}

var (
	errNoSecret   = errors.New("auth.jwt_secret is empty")
	errNoAudience = errors.New("auth.service_audience is empty")
)

// Validate reports whether the authenticator can verify tokens.
func (a *Authenticator) Validate() error {
	if len(a.secret) == 0 {
		return errNoSecret
	}
	if a.serviceAudience == "" {
		return errNoAudience
	}
	return nil
}
