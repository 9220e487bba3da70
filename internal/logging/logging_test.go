package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{" WARN ", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v (err %v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestNewWithWriterFiltersAndEncodes(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("warn", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	logger.Info("hidden")
	logger.Warn("level degraded", zap.Int("concurrency", 50))
	_ = logger.Sync()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "level degraded" || entry["level"] != "warn" || entry["logger"] != "sweepfire" {
		t.Errorf("unexpected entry %v", entry)
	}
	if entry["concurrency"] != float64(50) {
		t.Errorf("concurrency field = %v", entry["concurrency"])
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New("loud"); err == nil {
		t.Fatalf("expected error")
	}
}
