package metrics

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// LevelStats summarizes every outcome observed at one concurrency level.
//
// Latency fields cover all attempted requests, failures included; a timed out
// request contributes its timeout as latency. When Total is zero the
// millisecond fields hold NaN and the duration fields are zero.
type LevelStats struct {
	Concurrency int   `json:"concurrency" yaml:"concurrency"`
	Total       int64 `json:"total" yaml:"total"`
	Successes   int64 `json:"successes" yaml:"successes"`
	Failures    int64 `json:"failures" yaml:"failures"`

	MinLatency  time.Duration `json:"-" yaml:"-"`
	MaxLatency  time.Duration `json:"-" yaml:"-"`
	MeanLatency time.Duration `json:"-" yaml:"-"`
	P50Latency  time.Duration `json:"-" yaml:"-"`
	P95Latency  time.Duration `json:"-" yaml:"-"`
	P99Latency  time.Duration `json:"-" yaml:"-"`

	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`

	Errors      map[ErrorKind]int `json:"errors,omitempty" yaml:"errors,omitempty"`
	StatusCodes map[int]int       `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`

	// Wall-clock figures set by the runner; not part of the outcome fold.
	Elapsed        time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`
}

// MarshalJSON encodes the NaN latencies of an empty level as null.
func (s LevelStats) MarshalJSON() ([]byte, error) {
	type plain LevelStats
	return json.Marshal(struct {
		plain
		MinLatencyMs  *float64 `json:"min_latency_ms"`
		MaxLatencyMs  *float64 `json:"max_latency_ms"`
		MeanLatencyMs *float64 `json:"mean_latency_ms"`
		P50LatencyMs  *float64 `json:"p50_latency_ms"`
		P95LatencyMs  *float64 `json:"p95_latency_ms"`
		P99LatencyMs  *float64 `json:"p99_latency_ms"`
	}{
		plain:         plain(s),
		MinLatencyMs:  finite(s.MinLatencyMs),
		MaxLatencyMs:  finite(s.MaxLatencyMs),
		MeanLatencyMs: finite(s.MeanLatencyMs),
		P50LatencyMs:  finite(s.P50LatencyMs),
		P95LatencyMs:  finite(s.P95LatencyMs),
		P99LatencyMs:  finite(s.P99LatencyMs),
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Empty reports whether no requests were dispatched at this level.
func (s LevelStats) Empty() bool {
	return s.Total == 0
}

// ErrorRate returns Failures/Total, or 0 for an empty level.
func (s LevelStats) ErrorRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Total)
}

// Aggregate folds outcomes into LevelStats. The fold is order independent.
//
// Percentiles use the nearest-rank method: the p-th percentile of N sorted
// samples is the sample at rank ceil(p/100 * N).
func Aggregate(concurrency int, outcomes []Outcome) LevelStats {
	stats := LevelStats{
		Concurrency: concurrency,
		Total:       int64(len(outcomes)),
	}
	if len(outcomes) == 0 {
		nan := math.NaN()
		stats.MinLatencyMs = nan
		stats.MaxLatencyMs = nan
		stats.MeanLatencyMs = nan
		stats.P50LatencyMs = nan
		stats.P95LatencyMs = nan
		stats.P99LatencyMs = nan
		return stats
	}

	latencies := make([]time.Duration, len(outcomes))
	var sum time.Duration
	for i, o := range outcomes {
		latencies[i] = o.Latency
		sum += o.Latency

		if o.Success {
			stats.Successes++
		} else {
			stats.Failures++
			if stats.Errors == nil {
				stats.Errors = make(map[ErrorKind]int)
			}
			kind := o.Kind
			if kind == KindNone {
				kind = KindOther
			}
			stats.Errors[kind]++
		}
		if o.HasStatus() {
			if stats.StatusCodes == nil {
				stats.StatusCodes = make(map[int]int)
			}
			stats.StatusCodes[o.StatusCode]++
		}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	stats.MinLatency = latencies[0]
	stats.MaxLatency = latencies[len(latencies)-1]
	stats.MeanLatency = sum / time.Duration(len(latencies))
	stats.P50Latency = Percentile(latencies, 50)
	stats.P95Latency = Percentile(latencies, 95)
	stats.P99Latency = Percentile(latencies, 99)

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P95LatencyMs = toMillis(stats.P95Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	return stats
}

// WithElapsed returns a copy carrying the level's wall-clock duration and throughput.
func (s LevelStats) WithElapsed(elapsed time.Duration) LevelStats {
	s.Elapsed = elapsed
	s.RequestsPerSec = 0
	if elapsed > 0 && s.Total > 0 {
		s.RequestsPerSec = float64(s.Total) / elapsed.Seconds()
	}
	return s
}

// Percentile returns the nearest-rank percentile of an ascending slice.
// It returns 0 for an empty slice.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(n) / 100))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
