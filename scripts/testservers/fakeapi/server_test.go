package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/torosent/sweepfire/internal/auth"
	"github.com/torosent/sweepfire/internal/config"
)

func newTestServer(t *testing.T, opts serverOptions) *httptest.Server {
	t.Helper()
	if opts.Username == "" {
		opts.Username, opts.Password = "tester", "secret"
	}
	srv := httptest.NewServer(newServer(opts).routes())
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	provider, err := auth.NewLoginProvider(srv.URL+config.DefaultLoginPath, "tester", "secret", nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	cred, err := provider.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if cred.ExpiresAt.IsZero() {
		t.Errorf("issued token should carry an expiry")
	}
	return cred.Token
}

func upload(t *testing.T, srv *httptest.Server, token string) (*http.Response, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "eye.png")
	_, _ = part.Write([]byte("image"))
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+config.DefaultProcessPath, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestLoginIssuesTokenCookie(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	if token := login(t, srv); token == "" {
		t.Fatalf("empty token")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	resp, err := srv.Client().Post(srv.URL+config.DefaultLoginPath, "application/json",
		strings.NewReader(`{"username":"tester","password":"wrong"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestProcessRequiresToken(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	for _, token := range []string{"", "forged.token.value"} {
		resp, _ := upload(t, srv, token)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, resp.StatusCode)
		}
	}
}

func TestProcessAnswers(t *testing.T) {
	tests := []struct {
		name       string
		opts       serverOptions
		wantStatus int
		wantAnswer string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantAnswer: healthyAnswer},
		{name: "degraded", opts: serverOptions{DegradedRate: 1}, wantStatus: http.StatusOK, wantAnswer: config.DefaultDegradedAnswer},
		{name: "failing", opts: serverOptions{ErrorRate: 1}, wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.opts)
			resp, decoded := upload(t, srv, login(t, srv))
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantAnswer != "" && decoded["answer"] != tt.wantAnswer {
				t.Errorf("answer = %v, want %q", decoded["answer"], tt.wantAnswer)
			}
		})
	}
}

func TestProcessSheddingBeyondMaxInFlight(t *testing.T) {
	srv := newTestServer(t, serverOptions{MaxInFlight: 1, Latency: 300 * time.Millisecond})
	token := login(t, srv)

	first := make(chan int, 1)
	go func() {
		resp, _ := upload(t, srv, token)
		first <- resp.StatusCode
	}()
	time.Sleep(100 * time.Millisecond)

	resp, _ := upload(t, srv, token)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("concurrent upload status = %d, want 503", resp.StatusCode)
	}
	if status := <-first; status != http.StatusOK {
		t.Errorf("first upload status = %d, want 200", status)
	}
}
