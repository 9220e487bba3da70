// Package extractor pulls string values out of response bodies using JSON
// paths or regular expressions.
package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// RegexPrefix marks an expression as a regular expression instead of a JSON path.
const RegexPrefix = "regex:"

// Rule extracts one value from a response body. The zero Rule never matches.
type Rule struct {
	expr string
	find func(body []byte) string
}

// JSON returns a rule reading the scalar at path ("$.a.b" or "a.b").
// Objects, arrays and bodies that are not valid JSON never match.
func JSON(path string) Rule {
	query := strings.TrimPrefix(path, "$.")
	if query == "$" {
		query = "@this"
	}
	return Rule{expr: path, find: func(body []byte) string {
		if !gjson.ValidBytes(body) {
			return ""
		}
		switch v := gjson.GetBytes(body, query); v.Type {
		case gjson.String, gjson.Number, gjson.True, gjson.False:
			return v.String()
		}
		return ""
	}}
}

// Regex returns a rule yielding the first capture group of pattern, or the
// whole match when the pattern has no group.
func Regex(pattern string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid regex: %w", err)
	}
	return Rule{expr: RegexPrefix + pattern, find: func(body []byte) string {
		m := re.FindSubmatch(body)
		switch len(m) {
		case 0:
			return ""
		case 1:
			return string(m[0])
		}
		return string(m[1])
	}}, nil
}

// Parse builds a rule from an expression: Regex for RegexPrefix expressions,
// JSON for anything else.
func Parse(expr string) (Rule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Rule{}, fmt.Errorf("empty extraction expression")
	}
	if pattern, ok := strings.CutPrefix(expr, RegexPrefix); ok {
		return Regex(pattern)
	}
	return JSON(expr), nil
}

// ParseAll parses every expression, reporting the first invalid one.
func ParseAll(exprs []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(exprs))
	for i, expr := range exprs {
		rule, err := Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("expression[%d] %q: %w", i, expr, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Extract applies the rule. Empty and missing values report false.
func (r Rule) Extract(body []byte) (string, bool) {
	if r.find == nil {
		return "", false
	}
	value := strings.TrimSpace(r.find(body))
	return value, value != ""
}

func (r Rule) String() string { return r.expr }

// First returns the value of the first rule that matches body.
func First(body []byte, rules []Rule) (string, bool) {
	for _, rule := range rules {
		if value, ok := rule.Extract(body); ok {
			return value, true
		}
	}
	return "", false
}
