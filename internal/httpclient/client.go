package httpclient

import (
	"net"
	"net/http"
	"time"
)

const minIdlePerHost = 32

// NewClient creates a client for a sweep whose largest level keeps
// maxInFlight uploads open at once. Every level targets one host, so the
// idle pool per host is sized to that level and connections are reused
// between levels.
//
// The client sets no overall timeout; the Executor applies a deadline to
// each request. Redirects are not followed: a 3xx is the target's answer.
func NewClient(maxInFlight int) *http.Client {
	idle := max(maxInFlight, minIdlePerHost)
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        idle,
			MaxIdleConnsPerHost: idle,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
