package runner

import (
	"context"
	"math"
	"time"
)

// pacer blocks until the next dispatch of a level may start.
// Only the level's scheduler goroutine calls it.
type pacer func(ctx context.Context) error

// newPacer returns nil when dispatches are unpaced.
func newPacer(opt Options) pacer {
	if opt.RatePerSecond <= 0 {
		return nil
	}
	if opt.ArrivalModel == ArrivalModelPoisson {
		return poissonPacer(float64(opt.RatePerSecond), opt.PoissonSampler)
	}
	// A fresh limiter per level so one level's debt never delays the next.
	return opt.LimiterFactory(opt.RatePerSecond).Wait
}

// poissonPacer waits exponentially distributed gaps averaging 1/rps.
func poissonPacer(rps float64, sample func() float64) pacer {
	return func(ctx context.Context) error {
		gap := exponentialGap(rps, sample())
		if gap <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(gap)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// exponentialGap scales a unit exponential draw to a mean gap of 1/rps.
func exponentialGap(rps, draw float64) time.Duration {
	if rps <= 0 || draw <= 0 {
		return 0
	}
	return time.Duration(min(draw*float64(time.Second)/rps, math.MaxInt64))
}
