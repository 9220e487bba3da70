package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/torosent/sweepfire/internal/extractor"
)

const (
	// TokenCookie is the cookie the identity endpoint sets on a successful login.
	TokenCookie = "jwtToken"

	defaultLoginTimeout = 30 * time.Second
	maxLoginBodyBytes   = 1024 * 1024
	maxErrorBodyBytes   = 512
)

// DefaultTokenPaths are the JSON paths searched for a token in the login response.
// Entries prefixed with extractor.RegexPrefix are matched against the raw body.
var DefaultTokenPaths = []string{"token", "access_token", "jwtToken", "data.token"}

// LoginProvider exchanges a username and password for a bearer token.
// The first successful credential is cached for the rest of the session.
type LoginProvider struct {
	loginURL   string
	username   string
	password   string
	tokenRules []extractor.Rule
	httpClient *http.Client

	mu     sync.Mutex
	cached *Credential
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewLoginProvider creates a provider posting credentials to loginURL.
// A zero timeout selects the default acquisition timeout.
func NewLoginProvider(
	loginURL string,
	username string,
	password string,
	tokenPaths []string,
	timeout time.Duration,
) (*LoginProvider, error) {
	u, err := url.Parse(strings.TrimSpace(loginURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid login URL %q", loginURL)
	}
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}
	if len(tokenPaths) == 0 {
		tokenPaths = DefaultTokenPaths
	}
	rules, err := extractor.ParseAll(tokenPaths)
	if err != nil {
		return nil, fmt.Errorf("token paths: %w", err)
	}
	return &LoginProvider{
		loginURL:   u.String(),
		username:   username,
		password:   password,
		tokenRules: rules,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Acquire returns the cached credential or performs the login call.
func (p *LoginProvider) Acquire(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && !p.cached.Expired(time.Now()) {
		return *p.cached, nil
	}

	token, err := p.login(ctx)
	if err != nil {
		return Credential{}, err
	}
	cred := newCredential(token, time.Now())
	p.cached = &cred
	return cred, nil
}

func (p *LoginProvider) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(loginRequest{Username: p.username, Password: p.password})
	if err != nil {
		return "", p.fail(0, fmt.Errorf("encode login request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.loginURL, bytes.NewReader(payload))
	if err != nil {
		return "", p.fail(0, fmt.Errorf("create login request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", p.fail(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginBodyBytes))
	if err != nil {
		return "", p.fail(resp.StatusCode, fmt.Errorf("read login response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return "", p.fail(resp.StatusCode, fmt.Errorf("login rejected: %s", strings.TrimSpace(string(snippet))))
	}

	if token, ok := extractor.First(body, p.tokenRules); ok {
		return token, nil
	}
	for _, c := range resp.Cookies() {
		if c.Name == TokenCookie && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", p.fail(resp.StatusCode, ErrNoToken)
}

func (p *LoginProvider) fail(status int, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		err = fmt.Errorf("identity endpoint did not answer in time: %w", err)
	}
	return &AuthenticationError{Endpoint: p.loginURL, StatusCode: status, Err: err}
}

// Close releases idle connections held by the provider.
func (p *LoginProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
