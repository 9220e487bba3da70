package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/torosent/sweepfire/internal/auth"
	"github.com/torosent/sweepfire/internal/httpclient"
	"github.com/torosent/sweepfire/internal/metrics"
	"github.com/torosent/sweepfire/internal/tracing"
)

var errNoExecutor = errors.New("runner: no executor configured")

// Level is one phase of a sweep.
type Level struct {
	Concurrency int // maximum requests in flight
	Requests    int // requests dispatched during the level
}

// Runner executes one level at a time with bounded parallelism.
type Runner struct {
	opt Options
}

// New creates a runner; unset options take their defaults.
func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// Run dispatches level.Requests executions with at most level.Concurrency in
// flight and returns once every dispatched request has an outcome.
//
// Cancelling ctx stops further dispatches; requests that were never
// dispatched are not counted.
func (r *Runner) Run(ctx context.Context, level Level, cred auth.Credential, payload httpclient.Payload, timeout time.Duration) metrics.LevelStats {
	start := time.Now()

	concurrency := level.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	requests := level.Requests
	if requests < 0 {
		requests = 0
	}
	workers := min(concurrency, requests)

	for _, obs := range r.opt.Observers {
		if ls, ok := obs.(LevelStarter); ok {
			ls.StartLevel(concurrency)
		}
	}

	ctx, span := tracing.StartLevelSpan(ctx, r.opt.Tracer, concurrency, requests)

	// Each index is written by exactly one worker; wg.Wait orders the reads.
	outcomes := make([]metrics.Outcome, requests)
	dispatched := make([]bool, requests)

	permits := make(chan int, workers)
	pace := newPacer(r.opt)

	// Scheduler: serializes pacing so workers never overshoot the rate.
	go func() {
		defer close(permits)
		for i := 0; i < requests; i++ {
			if ctx.Err() != nil {
				return
			}
			if pace != nil {
				if err := pace(ctx); err != nil {
					return
				}
			}
			select {
			case permits <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range permits {
				out := r.execute(ctx, cred, payload, timeout)
				outcomes[i] = out
				dispatched[i] = true
				for _, obs := range r.opt.Observers {
					obs.Observe(concurrency, out)
				}
			}
		}()
	}
	wg.Wait()

	completed := outcomes
	if n := countTrue(dispatched); n < requests {
		completed = make([]metrics.Outcome, 0, n)
		for i, ok := range dispatched {
			if ok {
				completed = append(completed, outcomes[i])
			}
		}
	}

	stats := metrics.Aggregate(concurrency, completed).WithElapsed(time.Since(start))
	tracing.End(span, ctx.Err(), tracing.LevelResult(stats.Successes, stats.Failures)...)
	return stats
}

// execute shields the level from a misbehaving executor.
func (r *Runner) execute(ctx context.Context, cred auth.Credential, payload httpclient.Payload, timeout time.Duration) (out metrics.Outcome) {
	if r.opt.Executor == nil {
		return metrics.Failed(0, metrics.KindOther, 0, errNoExecutor)
	}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			out = metrics.Failed(time.Since(start), metrics.KindOther, 0, fmt.Errorf("executor panicked: %v", rec))
		}
	}()
	return r.opt.Executor.Execute(ctx, cred, payload, timeout)
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
