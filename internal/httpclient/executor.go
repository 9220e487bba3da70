package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/sweepfire/internal/auth"
	"github.com/torosent/sweepfire/internal/extractor"
	"github.com/torosent/sweepfire/internal/metrics"
	"github.com/torosent/sweepfire/internal/tracing"
)

const (
	maxAnswerBodyBytes = 1024 * 1024
	// DefaultAnswerPath is where the target API reports its processing answer.
	DefaultAnswerPath = "answer"
)

// ErrDegradedAnswer marks a 2xx response whose answer reports the service is degraded.
var ErrDegradedAnswer = errors.New("degraded answer")

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ExecutorOptions tune the executor.
type ExecutorOptions struct {
	// DegradedAnswer, when set, turns a 2xx response whose AnswerPath field
	// equals it into a ServerError outcome.
	DegradedAnswer string
	AnswerPath     string
	Tracer         trace.Tracer
	Propagate      bool
}

// Executor performs one upload per call and classifies the result.
// It holds no mutable state and is safe for concurrent use.
type Executor struct {
	client  *http.Client
	builder *RequestBuilder
	opts    ExecutorOptions
	answer  extractor.Rule
}

// NewExecutor creates an executor sending requests built by builder.
func NewExecutor(client *http.Client, builder *RequestBuilder, opts ExecutorOptions) *Executor {
	if client == nil {
		client = NewClient(0)
	}
	if opts.AnswerPath == "" {
		opts.AnswerPath = DefaultAnswerPath
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("sweepfire")
	}
	return &Executor{client: client, builder: builder, opts: opts, answer: extractor.JSON(opts.AnswerPath)}
}

// Execute sends one request and always returns exactly one outcome.
// A request exceeding timeout is abandoned and reported with the timeout as latency.
func (e *Executor) Execute(ctx context.Context, cred auth.Credential, payload Payload, timeout time.Duration) (out metrics.Outcome) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartUploadSpan(ctx, e.opts.Tracer, e.builder.Target())
	defer func() {
		if r := recover(); r != nil {
			out = metrics.Failed(0, metrics.KindOther, 0, fmt.Errorf("request panicked: %v", r))
		}
		tracing.End(span, out.Err, tracing.UploadResult(out.StatusCode, outcomeLabel(out))...)
	}()

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := e.builder.Build(reqCtx, cred, payload)
	if err != nil {
		return metrics.Failed(0, metrics.KindOther, 0, fmt.Errorf("build request: %w", err))
	}
	if e.opts.Propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return e.classifyError(ctx, reqCtx, time.Since(start), timeout, 0, err)
	}
	defer resp.Body.Close()

	answer, err := e.drain(resp)
	latency := time.Since(start)
	if err != nil {
		return e.classifyError(ctx, reqCtx, latency, timeout, resp.StatusCode, err)
	}

	return e.classifyStatus(latency, resp.StatusCode, answer)
}

// drain reads the body to the final byte, keeping the answer field when needed.
func (e *Executor) drain(resp *http.Response) (string, error) {
	if e.opts.DegradedAnswer == "" || resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, err := io.Copy(io.Discard, resp.Body)
		return "", err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBodyBytes))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return "", err
	}
	answer, _ := e.answer.Extract(body)
	return answer, nil
}

func (e *Executor) classifyStatus(latency time.Duration, status int, answer string) metrics.Outcome {
	switch {
	case status >= 200 && status <= 299:
		if e.opts.DegradedAnswer != "" && answer == e.opts.DegradedAnswer {
			return metrics.Failed(latency, metrics.KindServer, status, ErrDegradedAnswer)
		}
		return metrics.Succeeded(latency, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return metrics.Failed(latency, metrics.KindAuth, status, &HTTPError{StatusCode: status, Body: http.StatusText(status)})
	default:
		return metrics.Failed(latency, metrics.KindServer, status, &HTTPError{StatusCode: status, Body: http.StatusText(status)})
	}
}

func (e *Executor) classifyError(parent, reqCtx context.Context, latency, timeout time.Duration, status int, err error) metrics.Outcome {
	kind := ClassifyError(err)
	// The per-request deadline fired while the caller is still running.
	if parent.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		kind = metrics.KindTimeout
	}
	if parent.Err() != nil {
		kind = metrics.KindOther
	}
	if kind == metrics.KindTimeout && timeout > 0 {
		latency = timeout
	}
	return metrics.Failed(latency, kind, status, err)
}

// ClassifyError maps a transport error to an outcome kind.
func ClassifyError(err error) metrics.ErrorKind {
	if err == nil {
		return metrics.KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return metrics.KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return metrics.KindOther
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return metrics.KindConnection
	}
	return metrics.KindOther
}

func outcomeLabel(o metrics.Outcome) string {
	if o.Success {
		return "success"
	}
	if o.HasStatus() {
		return string(o.Kind) + ":" + strconv.Itoa(o.StatusCode)
	}
	return string(o.Kind)
}
