// Package errprompt maps database error messages to guidance prompts that
// steer the calling agent (e.g. suggesting LIMIT on timeout errors).
package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule maps an error-message regex to a guidance message.
type Rule struct {
	Pattern string
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher checks error messages against rules. Immutable after
// construction.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a Matcher. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

// Match evaluates the error message against all rules top to bottom in a
// single pass. It returns the matching guidance messages joined with
// newlines (empty string for no match) and the patterns that matched (nil
// for no match). The patterns are reported in structured logs.
func (m *Matcher) Match(errMsg string) (prompt string, patterns []string) {
	var messages []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			messages = append(messages, rule.message)
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return strings.Join(messages, "\n"), patterns
}
