package runner

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/torosent/sweepfire/internal/metrics"
)

func TestNewPacer(t *testing.T) {
	tests := []struct {
		name    string
		opt     Options
		wantNil bool
	}{
		{name: "unpaced", opt: Options{}, wantNil: true},
		{name: "negative rate", opt: Options{RatePerSecond: -1}, wantNil: true},
		{name: "uniform", opt: Options{RatePerSecond: 10}},
		{name: "poisson", opt: Options{RatePerSecond: 10, ArrivalModel: ArrivalModelPoisson}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := tt.opt
			opt.normalize()
			if got := newPacer(opt); (got == nil) != tt.wantNil {
				t.Errorf("newPacer() nil = %v, want %v", got == nil, tt.wantNil)
			}
		})
	}
}

func TestUniformPacerUsesLimiterFactory(t *testing.T) {
	var gotRPS int
	opt := Options{RatePerSecond: 7, LimiterFactory: func(rps int) *rate.Limiter {
		gotRPS = rps
		return rate.NewLimiter(rate.Inf, 0)
	}}
	opt.normalize()
	if err := newPacer(opt)(context.Background()); err != nil {
		t.Fatalf("pace() error = %v", err)
	}
	if gotRPS != 7 {
		t.Errorf("limiter built for %d rps, want 7", gotRPS)
	}
}

func TestOptionsNormalize(t *testing.T) {
	opt := Options{RatePerSecond: -3}
	opt.normalize()
	if opt.RatePerSecond != 0 || opt.ArrivalModel != ArrivalModelUniform {
		t.Errorf("normalize() = %+v", opt)
	}
	if opt.Tracer == nil || opt.LimiterFactory == nil || opt.PoissonSampler == nil || opt.RandomSeed == 0 {
		t.Errorf("normalize() left defaults unset")
	}
	if l := opt.LimiterFactory(0); l.Limit() != rate.Inf {
		t.Errorf("Limit(0) = %v, want Inf", l.Limit())
	}
	if l := opt.LimiterFactory(50); l.Limit() != rate.Limit(50) || l.Burst() != 1 {
		t.Errorf("Limit(50) = %v burst %d", l.Limit(), l.Burst())
	}
}

func TestExponentialGap(t *testing.T) {
	tests := []struct {
		rps, draw float64
		want      time.Duration
	}{
		{200, 1, 5 * time.Millisecond},
		{10, 2, 200 * time.Millisecond},
		{0, 1, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := exponentialGap(tt.rps, tt.draw); got != tt.want {
			t.Errorf("exponentialGap(%v, %v) = %s, want %s", tt.rps, tt.draw, got, tt.want)
		}
	}
}

func TestPoissonPacerCancelledContext(t *testing.T) {
	pace := poissonPacer(0.000001, func() float64 { return 1 })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pace(ctx); err == nil {
		t.Fatalf("expected context error when cancelled")
	}
}

func TestLoggingObserverLogsFailuresOnly(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	obs := LoggingObserver(zap.New(core))

	obs.Observe(5, metrics.Succeeded(time.Millisecond, 200))
	obs.Observe(5, metrics.Failed(2*time.Millisecond, metrics.KindServer, 503, nil))
	obs.Observe(5, metrics.Failed(time.Second, metrics.KindTimeout, 0, context.DeadlineExceeded))

	entries := logs.FilterMessage("request failed").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 failure logs, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["concurrency"] != int64(5) || fields["kind"] != "server_error" || fields["status"] != int64(503) {
		t.Errorf("unexpected fields %v", fields)
	}
	if _, ok := entries[1].ContextMap()["status"]; ok {
		t.Errorf("timeout entry should carry no status")
	}
}

func TestLoggingObserverSkipsWhenDebugDisabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	LoggingObserver(zap.New(core)).Observe(1, metrics.Failed(0, metrics.KindOther, 0, nil))
	if logs.Len() != 0 {
		t.Fatalf("expected no logs at info level, got %d", logs.Len())
	}
}
