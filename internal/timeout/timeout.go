// Package timeout resolves per-statement execution deadlines. Resolution
// order: first matching regex rule, then a per-command override keyed by
// the statement's leading keyword, then the default.
package timeout

import (
	"fmt"
	"regexp"
	"time"

	"github.com/pgveil/pgveil/internal/classify"
)

// Rule maps a SQL regex pattern to a timeout.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

// Config is the timeout manager's own config type.
type Config struct {
	DefaultTimeout time.Duration
	// CommandTimeouts overrides the default per classified command,
	// e.g. a longer budget for VACUUM or COPY.
	CommandTimeouts map[classify.Command]time.Duration
	Rules           []Rule
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Manager resolves statement timeouts. Immutable after construction.
type Manager struct {
	rules          []compiledRule
	perCommand     map[classify.Command]time.Duration
	defaultTimeout time.Duration
}

// NewManager creates a Manager. Returns an error on invalid regex patterns
// or non-positive timeouts.
func NewManager(config Config) (*Manager, error) {
	compiled := make([]compiledRule, len(config.Rules))
	for i, r := range config.Rules {
		if r.Timeout <= 0 {
			return nil, fmt.Errorf("timeout: rule %q has non-positive timeout %v", r.Pattern, r.Timeout)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	perCommand := make(map[classify.Command]time.Duration, len(config.CommandTimeouts))
	for cmd, d := range config.CommandTimeouts {
		if d <= 0 {
			return nil, fmt.Errorf("timeout: command %s has non-positive timeout %v", cmd, d)
		}
		perCommand[cmd] = d
	}
	return &Manager{
		rules:          compiled,
		perCommand:     perCommand,
		defaultTimeout: config.DefaultTimeout,
	}, nil
}

// Resolve returns the timeout for the given SQL along with the source of
// the decision: the matched rule's pattern, the command keyword for a
// per-command override, or "" for the default. First matching rule wins;
// rules beat command overrides.
func (m *Manager) Resolve(sql string) (time.Duration, string) {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	cmd := classify.Classify(sql)
	if d, ok := m.perCommand[cmd]; ok {
		return d, string(cmd)
	}
	return m.defaultTimeout, ""
}
