package config

import (
	"reflect"
	"testing"
	"time"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}
	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil || got != tt.want {
			t.Errorf("asString(%v) = %q, %v; want %q", tt.input, got, err, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    int
		wantErr bool
	}{
		{123, 123, false},
		{" 456 ", 456, false},
		{int64(789), 789, false},
		{float64(10), 10, false},
		{nil, 0, false},
		{"abc", 0, true},
		{[]int{1}, 0, true},
	}
	for _, tt := range tests {
		got, err := asInt(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("asInt(%v) = %d, %v; want %d (err %v)", tt.input, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"0", false},
		{"", false},
		{nil, false},
	}
	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil || got != tt.want {
			t.Errorf("asBool(%v) = %v, %v; want %v", tt.input, got, err, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"120", 120 * time.Second, false},
		{"1.5", 1500 * time.Millisecond, false},
		{90, 90 * time.Second, false},
		{float64(2.5), 2500 * time.Millisecond, false},
		{uint64(3), 3 * time.Second, false},
		{5 * time.Millisecond, 5 * time.Millisecond, false},
		{"", 0, false},
		{"soon", 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("asDuration(%v) = %s, %v; want %s (err %v)", tt.input, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestAsIntSlice(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    []int
		wantErr bool
	}{
		{[]interface{}{1, 5, 10}, []int{1, 5, 10}, false},
		{"1, 5,10", []int{1, 5, 10}, false},
		{[]int{2, 4}, []int{2, 4}, false},
		{7, []int{7}, false},
		{"1,x", nil, true},
	}
	for _, tt := range tests {
		got, err := asIntSlice(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("asIntSlice(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("asIntSlice(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsStringMap(t *testing.T) {
	got, err := asStringMap(map[interface{}]interface{}{"X-Key": 1})
	if err != nil || got["X-Key"] != "1" {
		t.Fatalf("asStringMap() = %v, %v", got, err)
	}
	if _, err := asStringMap(map[string]interface{}{" ": "v"}); err == nil {
		t.Errorf("expected error for empty key")
	}
	if _, err := asStringMap("nope"); err == nil {
		t.Errorf("expected error for non-map")
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		raw       string
		key, want string
		wantErr   bool
	}{
		{"x-api-key=abc", "X-Api-Key", "abc", false},
		{"Accept: text/plain", "Accept", "text/plain", false},
		{"a=b=c", "A", "b=c", false},
		{"=v", "", "", true},
		{"novalue", "", "", true},
	}
	for _, tt := range tests {
		key, value, err := parseHeader(tt.raw)
		if (err != nil) != tt.wantErr || key != tt.key || value != tt.want {
			t.Errorf("parseHeader(%q) = %q, %q, %v", tt.raw, key, value, err)
		}
	}
}

func TestApplyConfigSettingsTypeErrors(t *testing.T) {
	tests := []map[string]interface{}{
		{"port": "eighty"},
		{"levels": "1,two"},
		{"timeout": "forever"},
		{"json_output": "maybe"},
		{"tracing": "on"},
	}
	for _, settings := range tests {
		cfg := defaultConfig()
		if err := applyConfigSettings(cfg, settings); err == nil {
			t.Errorf("applyConfigSettings(%v) expected error", settings)
		}
	}
}
