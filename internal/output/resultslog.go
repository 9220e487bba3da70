package output

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"

	"github.com/torosent/sweepfire/internal/metrics"
)

const resultsLogHeader = "Load Test Results Log:\n"

// ErrResultsLogBusy is returned when another run holds the results log.
var ErrResultsLogBusy = errors.New("results log is in use by another run")

// ResultsLog is the plain-text log appended to after every level.
// The file is truncated when opened and locked until Close.
type ResultsLog struct {
	mu   sync.Mutex
	file *os.File
	lock *flock.Flock
}

// OpenResultsLog locks path and starts a fresh log there.
func OpenResultsLog(path string) (*ResultsLog, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock results log: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrResultsLogBusy)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open results log: %w", err)
	}
	if _, err := file.WriteString(resultsLogHeader); err != nil {
		_ = file.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("write results log: %w", err)
	}
	return &ResultsLog{file: file, lock: lock}, nil
}

// Append records one completed level.
func (l *ResultsLog) Append(stats metrics.LevelStats) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}
	w := bufio.NewWriter(l.file)
	fmt.Fprintf(w, "\nLoad Test Results - %d requests with %d threads:\n", stats.Total, stats.Concurrency)
	fmt.Fprintf(w, "Response times: min=%.4fs, max=%.4fs, avg=%.4fs\n",
		seconds(stats.MinLatencyMs), seconds(stats.MaxLatencyMs), seconds(stats.MeanLatencyMs))
	fmt.Fprintf(w, "Successful requests: %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed requests: %d\n", stats.Failures)
	return w.Flush()
}

// Close flushes the log to disk and releases the lock.
func (l *ResultsLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := errors.Join(l.file.Sync(), l.file.Close(), l.lock.Unlock())
	l.file = nil
	return err
}

// seconds converts a millisecond figure, reporting an empty level as zero.
func seconds(ms float64) float64 {
	if f := finite(ms); f != nil {
		return *f / 1000
	}
	return 0
}
