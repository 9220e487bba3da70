package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// mockIdentityServer provides a login endpoint that tracks requests.
type mockIdentityServer struct {
	server       *httptest.Server
	requestCount int32
	statusCode   int
	body         string
	cookie       string
	delay        time.Duration
	lastLogin    loginRequest
	mu           sync.Mutex
}

func newMockIdentityServer() *mockIdentityServer {
	m := &mockIdentityServer{
		statusCode: http.StatusOK,
		body:       `{"token":"test-token-123"}`,
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.requestCount, 1)

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var login loginRequest
		if err := json.NewDecoder(r.Body).Decode(&login); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		m.lastLogin = login
		statusCode, body, cookie, delay := m.statusCode, m.body, m.cookie, m.delay
		m.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if cookie != "" {
			http.SetCookie(w, &http.Cookie{Name: TokenCookie, Value: cookie})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}))

	return m
}

func (m *mockIdentityServer) set(status int, body, cookie string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = status
	m.body = body
	m.cookie = cookie
}

func (m *mockIdentityServer) getLastLogin() loginRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLogin
}

func (m *mockIdentityServer) getRequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

func (m *mockIdentityServer) close() {
	m.server.Close()
}

func TestLoginProviderBasicFlow(t *testing.T) {
	mock := newMockIdentityServer()
	defer mock.close()

	provider, err := NewLoginProvider(mock.server.URL, "alice", "s3cret", nil, time.Second)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer provider.Close()

	cred, err := provider.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if cred.Token != "test-token-123" {
		t.Errorf("expected token 'test-token-123', got %q", cred.Token)
	}
	if cred.AcquiredAt.IsZero() {
		t.Errorf("expected acquisition timestamp")
	}
	if !cred.ExpiresAt.IsZero() {
		t.Errorf("opaque token should have no expiry, got %s", cred.ExpiresAt)
	}
	if login := mock.getLastLogin(); login.Username != "alice" || login.Password != "s3cret" {
		t.Errorf("unexpected login payload %+v", login)
	}

	// Second acquisition uses the cached credential.
	again, err := provider.Acquire(context.Background())
	if err != nil {
		t.Fatalf("cached Acquire() error = %v", err)
	}
	if again != cred {
		t.Errorf("expected cached credential %+v, got %+v", cred, again)
	}
	if mock.getRequestCount() != 1 {
		t.Errorf("expected 1 login request, got %d", mock.getRequestCount())
	}
}

func TestLoginProviderTokenSources(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		cookie string
		paths  []string
		want   string
	}{
		{name: "access_token field", body: `{"access_token":"abc"}`, want: "abc"},
		{name: "nested default path", body: `{"data":{"token":"nested"}}`, want: "nested"},
		{name: "custom path", body: `{"result":{"jwt":"custom"}}`, paths: []string{"$.result.jwt"}, want: "custom"},
		{name: "regex path", body: `session=abc123; expires=never`, paths: []string{`regex:session=(\w+)`}, want: "abc123"},
		{name: "cookie fallback", body: `{"message":"ok"}`, cookie: "from-cookie", want: "from-cookie"},
		{name: "non json body with cookie", body: `welcome`, cookie: "c", want: "c"},
		{name: "body wins over cookie", body: `{"token":"body"}`, cookie: "cookie", want: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockIdentityServer()
			defer mock.close()
			mock.set(http.StatusOK, tt.body, tt.cookie)

			provider, err := NewLoginProvider(mock.server.URL, "u", "p", tt.paths, time.Second)
			if err != nil {
				t.Fatalf("failed to create provider: %v", err)
			}
			cred, err := provider.Acquire(context.Background())
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if cred.Token != tt.want {
				t.Errorf("token = %q, want %q", cred.Token, tt.want)
			}
		})
	}
}

func TestLoginProviderFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantErr    error
	}{
		{name: "rejected credentials", status: http.StatusUnauthorized, body: `{"error":"bad password"}`, wantStatus: 401},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantStatus: 500},
		{name: "missing token", status: http.StatusOK, body: `{"message":"ok"}`, wantStatus: 200, wantErr: ErrNoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockIdentityServer()
			defer mock.close()
			mock.set(tt.status, tt.body, "")

			provider, err := NewLoginProvider(mock.server.URL, "u", "p", nil, time.Second)
			if err != nil {
				t.Fatalf("failed to create provider: %v", err)
			}
			_, err = provider.Acquire(context.Background())
			var authErr *AuthenticationError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *AuthenticationError, got %T (%v)", err, err)
			}
			if authErr.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", authErr.StatusCode, tt.wantStatus)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v in chain, got %v", tt.wantErr, err)
			}
			if authErr.Endpoint != mock.server.URL {
				t.Errorf("endpoint = %q, want %q", authErr.Endpoint, mock.server.URL)
			}
		})
	}
}

func TestLoginProviderDoesNotCacheFailures(t *testing.T) {
	mock := newMockIdentityServer()
	defer mock.close()
	mock.set(http.StatusServiceUnavailable, `down`, "")

	provider, err := NewLoginProvider(mock.server.URL, "u", "p", nil, time.Second)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	if _, err := provider.Acquire(context.Background()); err == nil {
		t.Fatalf("expected first acquisition to fail")
	}

	mock.set(http.StatusOK, `{"token":"recovered"}`, "")
	cred, err := provider.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if cred.Token != "recovered" {
		t.Errorf("token = %q, want recovered", cred.Token)
	}
	if mock.getRequestCount() != 2 {
		t.Errorf("expected 2 login requests, got %d", mock.getRequestCount())
	}
}

func TestLoginProviderTimeout(t *testing.T) {
	mock := newMockIdentityServer()
	defer mock.close()
	mock.mu.Lock()
	mock.delay = 500 * time.Millisecond
	mock.mu.Unlock()

	provider, err := NewLoginProvider(mock.server.URL, "u", "p", nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	start := time.Now()
	_, err = provider.Acquire(context.Background())
	if !IsAuthenticationError(err) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("acquisition timeout not enforced, took %s", elapsed)
	}
}

func TestLoginProviderUnreachable(t *testing.T) {
	mock := newMockIdentityServer()
	url := mock.server.URL
	mock.close()

	provider, err := NewLoginProvider(url, "u", "p", nil, time.Second)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	_, err = provider.Acquire(context.Background())
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthenticationError, got %v", err)
	}
	if authErr.StatusCode != 0 {
		t.Errorf("expected no status for unreachable endpoint, got %d", authErr.StatusCode)
	}
}

func TestLoginProviderJWTExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	mock := newMockIdentityServer()
	defer mock.close()
	mock.set(http.StatusOK, `{"token":"`+signed+`"}`, "")

	provider, err := NewLoginProvider(mock.server.URL, "u", "p", nil, time.Second)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	cred, err := provider.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !cred.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %s, want %s", cred.ExpiresAt, exp)
	}
	if cred.Expired(time.Now()) {
		t.Errorf("fresh token reported as expired")
	}
	if !cred.Expired(exp.Add(time.Second)) {
		t.Errorf("token should be expired after exp")
	}
}

func TestNewLoginProviderRejectsInvalidTokenPath(t *testing.T) {
	if _, err := NewLoginProvider("http://idp/login", "u", "p", []string{"regex:("}, 0); err == nil {
		t.Fatalf("expected error for invalid token regex")
	}
}

func TestNewLoginProviderRejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/path"} {
		if _, err := NewLoginProvider(raw, "u", "p", nil, 0); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestCredentialApply(t *testing.T) {
	cred := Credential{Token: "abc"}
	req := httptest.NewRequest(http.MethodPost, "http://example.com", nil)
	cred.Apply(req)
	if got := req.Header.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer abc")
	}
}
