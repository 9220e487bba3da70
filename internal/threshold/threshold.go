// Package threshold parses performance assertions such as
// "http_req_duration:p95 < 500" and checks them against the statistics of
// every level of a sweep.
package threshold

import (
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/torosent/sweepfire/internal/metrics"
)

const (
	MetricDuration = "http_req_duration" // latency in milliseconds
	MetricFailed   = "http_req_failed"   // failed requests
	MetricRequests = "http_requests"     // attempted requests
)

const epsilon = 1e-9

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

type selector func(metrics.LevelStats) float64

// selectors lists, per metric, the aggregates it supports.
var selectors = map[string]map[string]selector{
	MetricDuration: {
		"p50":  func(s metrics.LevelStats) float64 { return s.P50LatencyMs },
		"p95":  func(s metrics.LevelStats) float64 { return s.P95LatencyMs },
		"p99":  func(s metrics.LevelStats) float64 { return s.P99LatencyMs },
		"avg":  func(s metrics.LevelStats) float64 { return s.MeanLatencyMs },
		"mean": func(s metrics.LevelStats) float64 { return s.MeanLatencyMs },
		"min":  func(s metrics.LevelStats) float64 { return s.MinLatencyMs },
		"max":  func(s metrics.LevelStats) float64 { return s.MaxLatencyMs },
	},
	MetricFailed: {
		"count": func(s metrics.LevelStats) float64 { return float64(s.Failures) },
		"rate":  metrics.LevelStats.ErrorRate,
	},
	MetricRequests: {
		"count": func(s metrics.LevelStats) float64 { return float64(s.Total) },
		"rate":  func(s metrics.LevelStats) float64 { return s.RequestsPerSec },
	},
}

var operators = map[string]func(actual, want float64) bool{
	"<":  func(a, w float64) bool { return a < w },
	"<=": func(a, w float64) bool { return a <= w || math.Abs(a-w) < epsilon },
	">":  func(a, w float64) bool { return a > w },
	">=": func(a, w float64) bool { return a >= w || math.Abs(a-w) < epsilon },
	"==": func(a, w float64) bool { return math.Abs(a-w) < epsilon },
}

// Threshold is one parsed assertion.
type Threshold struct {
	Metric    string
	Aggregate string
	Operator  string
	Value     float64
	Raw       string // as written, for display
}

// Result is the outcome of one threshold at one concurrency level.
type Result struct {
	Threshold   Threshold
	Concurrency int
	Actual      float64
	Pass        bool
	Skipped     bool // the level had no samples for a latency assertion
	Message     string
}

// Parse parses "metric:aggregate operator value". Latency values are in
// milliseconds and failure rates are fractions:
//
//	http_req_duration:p95 < 500
//	http_req_failed:rate < 0.01
//	http_requests:count >= 100
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}
	m := thresholdPattern.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'http_req_duration:p95 < 500')", s)
	}
	metric, aggregate, operator := m[1], m[2], m[3]

	value, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", m[4], err)
	}
	aggregates, ok := selectors[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, supported(selectors))
	}
	if _, ok := aggregates[aggregate]; !ok {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, supported(aggregates))
	}
	if _, ok := operators[operator]; !ok {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, supported(operators))
	}
	return Threshold{Metric: metric, Aggregate: aggregate, Operator: operator, Value: value, Raw: s}, nil
}

func supported[V any](m map[string]V) string {
	return strings.Join(slices.Sorted(maps.Keys(m)), ", ")
}

// ParseMultiple parses every threshold and reports all invalid ones at once.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}
	parsed := make([]Threshold, 0, len(thresholds))
	var errs []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		parsed = append(parsed, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return parsed, nil
}

// Evaluator checks a fixed set of thresholds.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates an evaluator for thresholds.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks every threshold against every level, in level order.
func (e *Evaluator) Evaluate(levels []metrics.LevelStats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds)*len(levels))
	for _, stats := range levels {
		for _, t := range e.thresholds {
			results = append(results, t.Check(stats))
		}
	}
	return results
}

// Check evaluates t against one level. A latency assertion on a level
// without samples is skipped and counts as passing.
func (t Threshold) Check(stats metrics.LevelStats) Result {
	r := Result{Threshold: t, Concurrency: stats.Concurrency}
	sel, ok := selectors[t.Metric][t.Aggregate]
	compare, okOp := operators[t.Operator]
	if !ok || !okOp {
		r.Message = fmt.Sprintf("✗ %s @%d: cannot be evaluated", t.Raw, stats.Concurrency)
		return r
	}

	r.Actual = sel(stats)
	if math.IsNaN(r.Actual) {
		r.Pass, r.Skipped = true, true
		r.Message = fmt.Sprintf("- %s @%d: no samples", t.Raw, stats.Concurrency)
		return r
	}
	r.Pass = compare(r.Actual, t.Value)
	mark := "✓"
	if !r.Pass {
		mark = "✗"
	}
	r.Message = fmt.Sprintf("%s %s @%d: %.2f %s %.2f", mark, t.Raw, stats.Concurrency, r.Actual, t.Operator, t.Value)
	return r
}

// Passed reports whether no result failed.
func Passed(results []Result) bool {
	return !slices.ContainsFunc(results, func(r Result) bool { return !r.Pass })
}
