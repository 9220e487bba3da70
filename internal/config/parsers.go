// Package config resolves sweepfire settings from the environment, a dotenv
// file, an optional config file and command-line flags.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Config file values arrive as whatever the YAML or JSON decoder produced.
// The helpers below coerce them with cast, treating blank strings as unset.

// lookupSetting returns the first candidate key present in settings.
// Keys are also tried lowercased since viper folds case.
func lookupSetting(settings map[string]any, candidates ...string) (any, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

func blank(value any) bool {
	s, ok := value.(string)
	return value == nil || (ok && strings.TrimSpace(s) == "")
}

func trimmed(value any) any {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

func asString(value any) (string, error) {
	return cast.ToStringE(value)
}

func asInt(value any) (int, error) {
	if blank(value) {
		return 0, nil
	}
	return cast.ToIntE(trimmed(value))
}

func asFloat64(value any) (float64, error) {
	if blank(value) {
		return 0, nil
	}
	return cast.ToFloat64E(trimmed(value))
}

func asBool(value any) (bool, error) {
	if blank(value) {
		return false, nil
	}
	return cast.ToBoolE(trimmed(value))
}

// asDuration accepts Go duration strings; bare numbers are seconds.
func asDuration(value any) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		return asSeconds(v)
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

// asSeconds parses REQUEST_TIMEOUT style values: "120" means 120s, "2m" is
// also accepted.
func asSeconds(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func asStringMap(value any) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	if _, ok := value.(string); ok {
		return nil, fmt.Errorf("unsupported headers type %T", value)
	}
	m, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, fmt.Errorf("unsupported headers type %T", value)
	}
	for k := range m {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("header key cannot be empty")
		}
	}
	return m, nil
}

// asStringSlice keeps a lone string whole: thresholds contain spaces.
func asStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	default:
		return cast.ToStringSliceE(v)
	}
}

// asIntSlice accepts a list or a comma separated string such as "1,5,10".
func asIntSlice(value any) ([]int, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		var levels []int
		for i, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			n, err := asInt(part)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			levels = append(levels, n)
		}
		return levels, nil
	case []int, []any, []string:
		return cast.ToIntSliceE(v)
	default:
		n, err := asInt(v)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	}
}

// toStringKeyMap converts a decoded map to one with lowercase keys.
func toStringKeyMap(value any) (map[string]any, error) {
	if _, ok := value.(string); ok {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	raw, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	result := make(map[string]any, len(raw))
	for key, val := range raw {
		result[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return result, nil
}
