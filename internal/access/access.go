// Package access implements the access-level policy engine. An access
// level maps to a set of permitted SQL commands; the engine renders an
// allow/deny decision per classified command. Denial is a normal decision
// outcome, not an error.
package access

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pgveil/pgveil/internal/classify"
)

// Level is a named bundle of permitted SQL commands.
type Level string

const (
	LevelReadOnly Level = "readonly"
	LevelModify   Level = "modify"
	LevelDDL      Level = "ddl"
	LevelCustom   Level = "custom"
)

// ParseLevel returns the Level for the given name (case-insensitive).
func ParseLevel(name string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(name))) {
	case LevelReadOnly:
		return LevelReadOnly, nil
	case LevelModify:
		return LevelModify, nil
	case LevelDDL:
		return LevelDDL, nil
	case LevelCustom:
		return LevelCustom, nil
	}
	return "", fmt.Errorf("access: unknown level %q (want readonly, modify, ddl, or custom)", name)
}

// Built-in permitted command sets. Each level strictly extends the
// previous one: readonly ⊂ modify ⊂ ddl. None of them contains Unknown.
var (
	readOnlyCommands = []classify.Command{
		classify.Select, classify.Explain, classify.Analyze,
	}
	modifyCommands = append(readOnlyCommands,
		classify.Insert, classify.Update, classify.Delete,
		classify.Begin, classify.Commit, classify.Rollback,
	)
	ddlCommands = append(modifyCommands,
		classify.Create, classify.Drop, classify.Alter, classify.Truncate,
		classify.Grant, classify.Revoke, classify.Vacuum, classify.Copy,
	)
)

// Config is the policy engine's own config type.
type Config struct {
	Level Level
	// CustomCommands is consulted only for LevelCustom. Tokens are
	// case-normalized; unrecognized tokens collapse to UNKNOWN, which
	// whitelists unclassifiable statements. An empty list denies
	// everything.
	CustomCommands []string
}

// Engine renders allow/deny decisions for classified commands.
// Immutable after construction, safe for concurrent use.
type Engine struct {
	level     Level
	permitted map[classify.Command]struct{}
	sorted    []string
}

// NewEngine creates an Engine for the given config.
// Returns an error on an unrecognized level.
func NewEngine(config Config) (*Engine, error) {
	var commands []classify.Command
	switch config.Level {
	case LevelReadOnly:
		commands = readOnlyCommands
	case LevelModify:
		commands = modifyCommands
	case LevelDDL:
		commands = ddlCommands
	case LevelCustom:
		for _, token := range config.CustomCommands {
			commands = append(commands, classify.Parse(token))
		}
	default:
		return nil, fmt.Errorf("access: unknown level %q", config.Level)
	}

	permitted := make(map[classify.Command]struct{}, len(commands))
	for _, c := range commands {
		permitted[c] = struct{}{}
	}
	sorted := make([]string, 0, len(permitted))
	for c := range permitted {
		sorted = append(sorted, string(c))
	}
	sort.Strings(sorted)

	return &Engine{level: config.Level, permitted: permitted, sorted: sorted}, nil
}

// Level returns the engine's configured access level.
func (e *Engine) Level() Level {
	return e.level
}

// Permitted returns the sorted permitted command list. The returned slice
// is shared; callers must not modify it.
func (e *Engine) Permitted() []string {
	return e.sorted
}

// Decision is the outcome of an access check for one statement.
type Decision struct {
	Allowed   bool
	Command   classify.Command
	Level     Level
	Permitted []string
}

// Decide classifies the given SQL and checks the resulting command against
// the permitted set. Never fails: unclassifiable SQL yields Command
// Unknown, which is denied unless a custom list whitelists it.
func (e *Engine) Decide(sql string) Decision {
	cmd := classify.Classify(sql)
	_, ok := e.permitted[cmd]
	return Decision{
		Allowed:   ok,
		Command:   cmd,
		Level:     e.level,
		Permitted: e.sorted,
	}
}

// DeniedSummary renders caller-visible advisory text for a denied
// decision: the active level and the sorted permitted command list.
func (d Decision) DeniedSummary() string {
	if len(d.Permitted) == 0 {
		return fmt.Sprintf("%s is not allowed under access level %q: no commands are permitted", d.Command, d.Level)
	}
	return fmt.Sprintf("%s is not allowed under access level %q: permitted commands are %s",
		d.Command, d.Level, strings.Join(d.Permitted, ", "))
}
