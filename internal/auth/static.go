package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// StaticProvider returns a pre-issued token without any network calls.
type StaticProvider struct {
	token string
}

// NewStaticProvider creates a provider for the given token.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{
		token: strings.TrimSpace(token),
	}
}

// Acquire returns the static token.
func (p *StaticProvider) Acquire(ctx context.Context) (Credential, error) {
	if p.token == "" {
		return Credential{}, &AuthenticationError{Err: errors.New("static token is empty")}
	}
	return newCredential(p.token, time.Now()), nil
}

// Close is a no-op for static providers.
func (p *StaticProvider) Close() error {
	return nil
}
