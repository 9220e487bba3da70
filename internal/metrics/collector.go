package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector tracks live progress for the level currently running.
// It is safe for concurrent use and is reset between levels.
type Collector struct {
	mu        sync.Mutex
	hist      *hdrhistogram.Histogram
	level     int
	successes int64
	failures  int64
	start     time.Time
}

// Snapshot is a point-in-time view of the running level.
type Snapshot struct {
	Level          int
	Total          int64
	Successes      int64
	Failures       int64
	P50Latency     time.Duration
	P99Latency     time.Duration
	Elapsed        time.Duration
	RequestsPerSec float64
}

// NewCollector creates a collector with no level started.
func NewCollector() *Collector {
	// Track latencies from 1µs up to 10m with 3 significant figures.
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &Collector{
		hist:  h,
		start: time.Now(),
	}
}

// StartLevel clears all counters and marks the start of a new level.
func (c *Collector) StartLevel(level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hist.Reset()
	c.level = level
	c.successes = 0
	c.failures = 0
	c.start = time.Now()
}

// Observe records a single outcome.
func (c *Collector) Observe(level int, o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if level != c.level {
		return
	}
	if o.Latency > 0 {
		us := o.Latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	if o.Success {
		c.successes++
	} else {
		c.failures++
	}
}

// Snapshot returns the current progress of the level.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	snap := Snapshot{
		Level:     c.level,
		Total:     total,
		Successes: c.successes,
		Failures:  c.failures,
		Elapsed:   time.Since(c.start),
	}
	if c.hist.TotalCount() > 0 {
		snap.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		snap.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	if snap.Elapsed > 0 && total > 0 {
		snap.RequestsPerSec = float64(total) / snap.Elapsed.Seconds()
	}
	return snap
}
