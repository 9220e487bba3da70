package metrics

import (
	"fmt"
	"time"
)

// ErrorKind classifies why a request did not succeed.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection_error"
	KindAuth       ErrorKind = "auth_error"
	KindServer     ErrorKind = "server_error"
	KindOther      ErrorKind = "other"
)

// Kinds lists every failure classification in report order.
var Kinds = []ErrorKind{KindTimeout, KindConnection, KindAuth, KindServer, KindOther}

// Label returns a human-friendly name for the kind.
func (k ErrorKind) Label() string {
	switch k {
	case KindNone:
		return "None"
	case KindTimeout:
		return "Timeout"
	case KindConnection:
		return "Connection error"
	case KindAuth:
		return "Auth error"
	case KindServer:
		return "Server error"
	case KindOther:
		return "Other"
	default:
		return string(k)
	}
}

// Outcome is the terminal result of one dispatched request.
type Outcome struct {
	Latency    time.Duration
	Success    bool
	StatusCode int // 0 when no response was received
	Kind       ErrorKind
	Err        error
}

// Succeeded builds a successful outcome.
func Succeeded(latency time.Duration, status int) Outcome {
	return Outcome{Latency: latency, Success: true, StatusCode: status}
}

// Failed builds a failed outcome. A zero status means no response.
func Failed(latency time.Duration, kind ErrorKind, status int, err error) Outcome {
	if kind == KindNone {
		kind = KindOther
	}
	return Outcome{Latency: latency, StatusCode: status, Kind: kind, Err: err}
}

// HasStatus reports whether a response status was received.
func (o Outcome) HasStatus() bool {
	return o.StatusCode > 0
}

func (o Outcome) String() string {
	if o.Success {
		return fmt.Sprintf("ok status=%d latency=%s", o.StatusCode, o.Latency)
	}
	if o.HasStatus() {
		return fmt.Sprintf("%s status=%d latency=%s", o.Kind.Label(), o.StatusCode, o.Latency)
	}
	return fmt.Sprintf("%s latency=%s", o.Kind.Label(), o.Latency)
}
