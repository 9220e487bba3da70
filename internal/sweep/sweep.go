// Package sweep drives a runner across an ordered list of concurrency levels.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/sweepfire/internal/auth"
	"github.com/torosent/sweepfire/internal/httpclient"
	"github.com/torosent/sweepfire/internal/metrics"
	"github.com/torosent/sweepfire/internal/runner"
	"github.com/torosent/sweepfire/internal/tracing"
)

const defaultAuthBackoff = time.Second

// LevelRunner runs one level. *runner.Runner implements it.
type LevelRunner interface {
	Run(ctx context.Context, level runner.Level, cred auth.Credential, payload httpclient.Payload, timeout time.Duration) metrics.LevelStats
}

// Result is the outcome of a completed sweep. Levels keep the plan order.
type Result struct {
	RunID      string               `json:"run_id" yaml:"run_id"`
	Target     string               `json:"target" yaml:"target"`
	StartedAt  time.Time            `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time            `json:"finished_at" yaml:"finished_at"`
	Levels     []metrics.LevelStats `json:"levels" yaml:"levels"`
}

// Empty reports whether the sweep produced no level statistics.
func (r Result) Empty() bool {
	return len(r.Levels) == 0
}

// Duration is the wall-clock time of the sweep.
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Options configure a Controller.
type Options struct {
	Provider     auth.Provider // required
	Runner       LevelRunner   // required
	Target       string        // reported in the result
	AuthAttempts int           // credential acquisitions tried before giving up (default 1)
	AuthBackoff  time.Duration // pause between acquisition attempts
	Logger       *zap.Logger
	Tracer       trace.Tracer
	// OnLevel is called after each level completes, in plan order.
	OnLevel func(metrics.LevelStats)
}

// Controller owns the sweep lifecycle.
type Controller struct {
	opts Options
}

// New validates opts and returns a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Provider == nil {
		return nil, errors.New("sweep: credential provider is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("sweep: level runner is required")
	}
	if opts.AuthAttempts < 1 {
		opts.AuthAttempts = 1
	}
	if opts.AuthBackoff < 0 {
		opts.AuthBackoff = 0
	} else if opts.AuthBackoff == 0 {
		opts.AuthBackoff = defaultAuthBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer(tracing.InstrumentationName)
	}
	return &Controller{opts: opts}, nil
}

// Sweep authenticates once, then runs every level of plan in order.
//
// A sweep either completes with one LevelStats per level or fails with an
// empty Result: an authentication failure aborts before any request is
// dispatched, and cancellation discards the levels completed so far.
// Degraded levels are data, not errors.
func (c *Controller) Sweep(ctx context.Context, plan Plan, source httpclient.PayloadSource) (result Result, err error) {
	if err := plan.Validate(); err != nil {
		return Result{}, err
	}
	if source == nil {
		return Result{}, errors.New("sweep: payload source is required")
	}
	log := c.opts.Logger

	payload, err := source.Load()
	if err != nil {
		return Result{}, fmt.Errorf("load payload: %w", err)
	}

	ctx, span := tracing.StartSweepSpan(ctx, c.opts.Tracer, plan.Levels, plan.RequestsPerLevel)
	defer func() { tracing.End(span, err) }()

	cred, err := c.acquire(ctx)
	if err != nil {
		log.Error("credential acquisition failed, sweep aborted", zap.Error(err))
		return Result{}, err
	}

	result = Result{
		RunID:     ulid.Make().String(),
		Target:    c.opts.Target,
		StartedAt: time.Now(),
		Levels:    make([]metrics.LevelStats, 0, len(plan.Levels)),
	}
	log = log.With(zap.String("run_id", result.RunID))
	log.Info("sweep started",
		zap.Ints("levels", plan.Levels),
		zap.Int("requests_per_level", plan.RequestsPerLevel),
		zap.Duration("timeout", plan.Timeout),
	)

	for i := range plan.Levels {
		if i > 0 && plan.Cooldown > 0 {
			if err := sleep(ctx, plan.Cooldown); err != nil {
				return Result{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		level := plan.level(i)
		stats := c.opts.Runner.Run(ctx, level, cred, payload, plan.Timeout)
		if err := ctx.Err(); err != nil {
			log.Warn("sweep cancelled", zap.Int("concurrency", level.Concurrency))
			return Result{}, err
		}

		logLevel(log, stats)
		result.Levels = append(result.Levels, stats)
		if c.opts.OnLevel != nil {
			c.opts.OnLevel(stats)
		}
	}

	result.FinishedAt = time.Now()
	log.Info("sweep finished", zap.Duration("duration", result.Duration()))
	return result, nil
}

// acquire performs up to AuthAttempts acquisitions before the first level.
func (c *Controller) acquire(ctx context.Context) (auth.Credential, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.AuthAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.opts.AuthBackoff); err != nil {
				return auth.Credential{}, err
			}
		}
		cred, err := c.opts.Provider.Acquire(ctx)
		if err == nil {
			c.opts.Logger.Info("credential acquired", zap.Int("attempt", attempt), zap.Bool("expires", !cred.ExpiresAt.IsZero()))
			return cred, nil
		}
		lastErr = err
		if attempt < c.opts.AuthAttempts {
			c.opts.Logger.Warn("credential acquisition failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	return auth.Credential{}, lastErr
}

func logLevel(log *zap.Logger, stats metrics.LevelStats) {
	fields := []zap.Field{
		zap.Int("concurrency", stats.Concurrency),
		zap.Int64("total", stats.Total),
		zap.Int64("successes", stats.Successes),
		zap.Int64("failures", stats.Failures),
		zap.Duration("mean", stats.MeanLatency),
		zap.Duration("p95", stats.P95Latency),
		zap.Duration("elapsed", stats.Elapsed),
	}
	if stats.Total > 0 && stats.Successes == 0 {
		log.Warn("level degraded: every request failed", fields...)
		return
	}
	log.Info("level complete", fields...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
