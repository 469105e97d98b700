// Package sanitize applies regex-based sanitization to result row field
// values, recursing into JSONB maps and arrays. Sanitization is
// copy-on-write: input rows are never mutated, matching the no-mutation
// guarantee of the masking layer downstream callers rely on.
package sanitize

import (
	"fmt"
	"regexp"
)

// Rule is the sanitizer's own rule type.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Sanitizer applies regex-based sanitization to result rows. Immutable
// after construction.
type Sanitizer struct {
	rules []compiledRule
}

// NewSanitizer creates a Sanitizer. Returns an error on invalid regex
// patterns.
func NewSanitizer(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Sanitizer{rules: compiled}, nil
}

// HasRules returns true if any rules are configured.
func (s *Sanitizer) HasRules() bool {
	return len(s.rules) > 0
}

// SanitizeRows returns rows with every string value run through the rule
// chain. With no rules configured the input is returned unchanged;
// otherwise new rows are built and the inputs are left untouched.
func (s *Sanitizer) SanitizeRows(rows []map[string]interface{}) []map[string]interface{} {
	if !s.HasRules() || len(rows) == 0 {
		return rows
	}
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		clean := make(map[string]interface{}, len(row))
		for k, v := range row {
			clean[k] = s.sanitizeValue(v)
		}
		out[i] = clean
	}
	return out
}

func (s *Sanitizer) sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		result := val
		for _, rule := range s.rules {
			result = rule.pattern.ReplaceAllString(result, rule.replacement)
		}
		return result
	case map[string]interface{}:
		clean := make(map[string]interface{}, len(val))
		for k, item := range val {
			clean[k] = s.sanitizeValue(item)
		}
		return clean
	case []interface{}:
		clean := make([]interface{}, len(val))
		for i, item := range val {
			clean[i] = s.sanitizeValue(item)
		}
		return clean
	default:
		// Numeric, bool, nil, json.Number — pass through. json.Number is
		// a string underneath but does not match `case string:` in a type
		// switch, so it is not rewritten.
		return v
	}
}
