package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the bearer token used for every request of a session.
// It is immutable once acquired and safe to share between goroutines.
type Credential struct {
	Token      string
	AcquiredAt time.Time
	ExpiresAt  time.Time // zero when the token carries no exp claim
}

// Provider defines the interface for obtaining a session credential.
type Provider interface {
	// Acquire returns the session credential, performing at most one network
	// call. Failures are reported as *AuthenticationError.
	Acquire(ctx context.Context) (Credential, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Authorization returns the Authorization header value for the credential.
func (c Credential) Authorization() string {
	return "Bearer " + c.Token
}

// Apply sets the Authorization header on req.
func (c Credential) Apply(req *http.Request) {
	req.Header.Set("Authorization", c.Authorization())
}

// Expired reports whether the token's exp claim is at or before now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func newCredential(token string, now time.Time) Credential {
	return Credential{
		Token:      token,
		AcquiredAt: now,
		ExpiresAt:  tokenExpiry(token),
	}
}

// tokenExpiry reads the exp claim of a JWT without verifying its signature.
// Opaque tokens yield the zero time.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
