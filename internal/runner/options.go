package runner

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/torosent/sweepfire/internal/auth"
	"github.com/torosent/sweepfire/internal/httpclient"
	"github.com/torosent/sweepfire/internal/metrics"
)

// Executor performs one request and always yields an outcome.
// *httpclient.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, cred auth.Credential, payload httpclient.Payload, timeout time.Duration) metrics.Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, cred auth.Credential, payload httpclient.Payload, timeout time.Duration) metrics.Outcome

func (f ExecutorFunc) Execute(ctx context.Context, cred auth.Credential, payload httpclient.Payload, timeout time.Duration) metrics.Outcome {
	return f(ctx, cred, payload, timeout)
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Options configure the Runner.
type Options struct {
	Executor       Executor                    // request executor (required)
	RatePerSecond  int                         // dispatch pacing within a level (0 means unlimited)
	ArrivalModel   ArrivalModel                // how paced dispatches are spaced
	Observers      []Observer                  // receive every outcome as it completes
	Tracer         trace.Tracer                // level spans; no-op when nil
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	PoissonSampler func() float64              // optional injection for tests
	RandomSeed     int64
}

func (o *Options) normalize() {
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("sweepfire")
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one spaces dispatches evenly from the first request.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	if o.PoissonSampler == nil {
		o.PoissonSampler = rand.New(rand.NewSource(o.RandomSeed)).ExpFloat64
	}
}
