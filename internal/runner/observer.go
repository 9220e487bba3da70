package runner

import (
	"go.uber.org/zap"

	"github.com/torosent/sweepfire/internal/metrics"
)

// Observer receives every outcome as soon as it completes. Observers are
// called from worker goroutines and must be safe for concurrent use.
type Observer interface {
	Observe(level int, o metrics.Outcome)
}

// LevelStarter is implemented by observers that keep per-level state.
type LevelStarter interface {
	StartLevel(level int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(level int, o metrics.Outcome)

func (f ObserverFunc) Observe(level int, o metrics.Outcome) {
	f(level, o)
}

// LoggingObserver logs failed outcomes at debug level.
func LoggingObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &loggingObserver{logger: logger}
}

type loggingObserver struct {
	logger *zap.Logger
}

func (l *loggingObserver) Observe(level int, o metrics.Outcome) {
	if o.Success || !l.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	fields := []zap.Field{
		zap.Int("concurrency", level),
		zap.String("kind", string(o.Kind)),
		zap.Duration("latency", o.Latency),
	}
	if o.HasStatus() {
		fields = append(fields, zap.Int("status", o.StatusCode))
	}
	if o.Err != nil {
		fields = append(fields, zap.Error(o.Err))
	}
	l.logger.Debug("request failed", fields...)
}
