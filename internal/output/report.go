package output

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/sweepfire/internal/metrics"
	"github.com/torosent/sweepfire/internal/sweep"
	"github.com/torosent/sweepfire/internal/threshold"
)

// PrintReport outputs a human-readable summary with one row per level.
func PrintReport(w io.Writer, result sweep.Result, thresholds []threshold.Result) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Run:               %s\n", result.RunID)
	fmt.Fprintf(w, "Target:            %s\n", result.Target)
	fmt.Fprintf(w, "Duration:          %s\n", result.Duration().Round(time.Millisecond))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Concurrency\tRequests\tOK\tFailed\tMin\tMean\tP50\tP95\tP99\tMax\tReq/s\t")
	for _, s := range result.Levels {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%.2f\t\n",
			s.Concurrency, s.Total, s.Successes, s.Failures,
			formatMs(s.MinLatencyMs), formatMs(s.MeanLatencyMs),
			formatMs(s.P50LatencyMs), formatMs(s.P95LatencyMs), formatMs(s.P99LatencyMs),
			formatMs(s.MaxLatencyMs), s.RequestsPerSec,
		)
	}
	_ = tw.Flush()

	var failing []metrics.LevelStats
	for _, s := range result.Levels {
		if s.Failures > 0 {
			failing = append(failing, s)
		}
	}
	if len(failing) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for _, s := range failing {
			fmt.Fprintf(w, "  %d: %s\n", s.Concurrency, describeFailures(s))
		}
	}

	if len(thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report. Latency fields of empty
// levels are encoded as null.
func PrintJSONReport(w io.Writer, result sweep.Result, thresholds []threshold.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newReportView(result, thresholds))
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, result sweep.Result, thresholds []threshold.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newReportView(result, thresholds)); err != nil {
		return err
	}
	return enc.Close()
}

type reportView struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	Target     string          `json:"target" yaml:"target"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
	DurationMs float64         `json:"duration_ms" yaml:"duration_ms"`
	Levels     []levelView     `json:"levels" yaml:"levels"`
	Thresholds *thresholdsView `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

type levelView struct {
	Concurrency    int            `json:"concurrency" yaml:"concurrency"`
	Total          int64          `json:"total" yaml:"total"`
	Successes      int64          `json:"successes" yaml:"successes"`
	Failures       int64          `json:"failures" yaml:"failures"`
	MinLatencyMs   *float64       `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs   *float64       `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs  *float64       `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs   *float64       `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P95LatencyMs   *float64       `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs   *float64       `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	ElapsedMs      float64        `json:"elapsed_ms" yaml:"elapsed_ms"`
	RequestsPerSec float64        `json:"requests_per_sec" yaml:"requests_per_sec"`
	Errors         map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
	StatusCodes    map[string]int `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
}

type thresholdsView struct {
	Total   int             `json:"total" yaml:"total"`
	Passed  int             `json:"passed" yaml:"passed"`
	Failed  int             `json:"failed" yaml:"failed"`
	Results []thresholdView `json:"results" yaml:"results"`
}

type thresholdView struct {
	Threshold   string   `json:"threshold" yaml:"threshold"`
	Concurrency int      `json:"concurrency" yaml:"concurrency"`
	Expected    float64  `json:"expected" yaml:"expected"`
	Actual      *float64 `json:"actual" yaml:"actual"`
	Pass        bool     `json:"pass" yaml:"pass"`
	Skipped     bool     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func newReportView(result sweep.Result, thresholds []threshold.Result) reportView {
	view := reportView{
		RunID:      result.RunID,
		Target:     result.Target,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		DurationMs: durationMs(result.Duration()),
		Levels:     make([]levelView, 0, len(result.Levels)),
	}
	for _, s := range result.Levels {
		view.Levels = append(view.Levels, newLevelView(s))
	}
	if len(thresholds) > 0 {
		tv := &thresholdsView{Total: len(thresholds), Results: make([]thresholdView, len(thresholds))}
		for i, r := range thresholds {
			tv.Results[i] = thresholdView{
				Threshold:   r.Threshold.Raw,
				Concurrency: r.Concurrency,
				Expected:    r.Threshold.Value,
				Actual:      finite(r.Actual),
				Pass:        r.Pass,
				Skipped:     r.Skipped,
			}
			if r.Pass {
				tv.Passed++
			} else {
				tv.Failed++
			}
		}
		view.Thresholds = tv
	}
	return view
}

func newLevelView(s metrics.LevelStats) levelView {
	lv := levelView{
		Concurrency:    s.Concurrency,
		Total:          s.Total,
		Successes:      s.Successes,
		Failures:       s.Failures,
		MinLatencyMs:   finite(s.MinLatencyMs),
		MaxLatencyMs:   finite(s.MaxLatencyMs),
		MeanLatencyMs:  finite(s.MeanLatencyMs),
		P50LatencyMs:   finite(s.P50LatencyMs),
		P95LatencyMs:   finite(s.P95LatencyMs),
		P99LatencyMs:   finite(s.P99LatencyMs),
		ElapsedMs:      durationMs(s.Elapsed),
		RequestsPerSec: s.RequestsPerSec,
	}
	if len(s.Errors) > 0 {
		lv.Errors = make(map[string]int, len(s.Errors))
		for kind, n := range s.Errors {
			lv.Errors[string(kind)] = n
		}
	}
	if len(s.StatusCodes) > 0 {
		lv.StatusCodes = make(map[string]int, len(s.StatusCodes))
		for code, n := range s.StatusCodes {
			lv.StatusCodes[strconv.Itoa(code)] = n
		}
	}
	return lv
}

func describeFailures(s metrics.LevelStats) string {
	parts := make([]string, 0, len(metrics.Kinds)+len(s.StatusCodes))
	for _, kind := range metrics.Kinds {
		if n := s.Errors[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", kind.Label(), n))
		}
	}
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		if code < 200 || code > 299 {
			codes = append(codes, code)
		}
	}
	sort.Ints(codes)
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("HTTP %d=%d", code, s.StatusCodes[code]))
	}
	return strings.Join(parts, ", ")
}

func formatMs(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.1fms", v)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
