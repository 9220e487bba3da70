package output

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/sweepfire/internal/metrics"
	"github.com/torosent/sweepfire/internal/sweep"
	"github.com/torosent/sweepfire/internal/threshold"
)

func sampleResult() sweep.Result {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ok := metrics.Aggregate(1, []metrics.Outcome{
		metrics.Succeeded(40*time.Millisecond, 200),
		metrics.Succeeded(60*time.Millisecond, 200),
	}).WithElapsed(100 * time.Millisecond)
	degraded := metrics.Aggregate(5, []metrics.Outcome{
		metrics.Failed(120*time.Second, metrics.KindTimeout, 0, nil),
		metrics.Failed(10*time.Millisecond, metrics.KindServer, 503, nil),
	}).WithElapsed(120 * time.Second)
	empty := metrics.Aggregate(10, nil)

	return sweep.Result{
		RunID:      "01HZY3J4Q6W8X0A2B4C6D8E0F2",
		Target:     "http://api:8080/mobile/glaucoma-screening/process",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Minute),
		Levels:     []metrics.LevelStats{ok, degraded, empty},
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleResult(), nil)
	out := buf.String()

	for _, want := range []string{
		"--- Load Test Results ---",
		"01HZY3J4Q6W8X0A2B4C6D8E0F2",
		"Concurrency",
		"50.0ms",
		"Failures:",
		"Timeout=1",
		"HTTP 503=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "NaN") {
		t.Errorf("empty level should not print NaN:\n%s", out)
	}
	if strings.Contains(out, "Thresholds:") {
		t.Errorf("no thresholds section expected")
	}
}

func TestPrintReportIncludesThresholds(t *testing.T) {
	result := sampleResult()
	ths, err := threshold.ParseMultiple([]string{"http_req_failed:rate < 0.5"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	results := threshold.NewEvaluator(ths).Evaluate(result.Levels)

	var buf bytes.Buffer
	PrintReport(&buf, result, results)
	out := buf.String()
	if !strings.Contains(out, "Thresholds:") || !strings.Contains(out, "✗ http_req_failed:rate < 0.5 @5") {
		t.Errorf("thresholds not reported:\n%s", out)
	}
}

func TestPrintJSONReportEncodesEmptyLevelAsNull(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleResult(), nil); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	levels, ok := decoded["levels"].([]interface{})
	if !ok || len(levels) != 3 {
		t.Fatalf("levels = %v", decoded["levels"])
	}
	first := levels[0].(map[string]interface{})
	if first["mean_latency_ms"] != 50.0 {
		t.Errorf("mean_latency_ms = %v, want 50", first["mean_latency_ms"])
	}
	second := levels[1].(map[string]interface{})
	if errs := second["errors"].(map[string]interface{}); errs["timeout"] != 1.0 {
		t.Errorf("errors = %v", errs)
	}
	if codes := second["status_codes"].(map[string]interface{}); codes["503"] != 1.0 {
		t.Errorf("status_codes = %v", codes)
	}
	third := levels[2].(map[string]interface{})
	if v, present := third["p95_latency_ms"]; !present || v != nil {
		t.Errorf("empty level p95 = %v (present=%v), want null", v, present)
	}
	if _, present := decoded["thresholds"]; present {
		t.Errorf("thresholds should be omitted")
	}
}

func TestPrintJSONReportThresholdSummary(t *testing.T) {
	result := sampleResult()
	ths, _ := threshold.ParseMultiple([]string{"http_req_duration:p99 < 1000"})
	results := threshold.NewEvaluator(ths).Evaluate(result.Levels)

	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, result, results); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}
	var decoded struct {
		Thresholds struct {
			Total  int `json:"total"`
			Passed int `json:"passed"`
			Failed int `json:"failed"`
		} `json:"thresholds"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	// Level 1 passes, level 5 fails on the timeout, level 10 is skipped.
	if decoded.Thresholds.Total != 3 || decoded.Thresholds.Passed != 2 || decoded.Thresholds.Failed != 1 {
		t.Errorf("threshold summary = %+v", decoded.Thresholds)
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintYAMLReport(&buf, sampleResult(), nil); err != nil {
		t.Fatalf("PrintYAMLReport() error = %v", err)
	}
	var decoded reportView
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
	}
	if decoded.RunID != "01HZY3J4Q6W8X0A2B4C6D8E0F2" || len(decoded.Levels) != 3 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Levels[0].MeanLatencyMs == nil || math.Abs(*decoded.Levels[0].MeanLatencyMs-50) > 1e-9 {
		t.Errorf("mean latency = %v", decoded.Levels[0].MeanLatencyMs)
	}
	if decoded.Levels[2].MinLatencyMs != nil {
		t.Errorf("empty level min latency = %v, want nil", *decoded.Levels[2].MinLatencyMs)
	}
}
