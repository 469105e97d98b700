package errprompt

import (
	"strings"
	"testing"
)

func TestMatchSingleRule(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: "deadline exceeded", Message: "Query timed out. Add a LIMIT clause."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt, patterns := m.Match("context deadline exceeded")
	if prompt != "Query timed out. Add a LIMIT clause." {
		t.Errorf("unexpected prompt: %q", prompt)
	}
	if len(patterns) != 1 || patterns[0] != "deadline exceeded" {
		t.Errorf("unexpected patterns: %v", patterns)
	}
}

func TestMatchMultipleRulesJoined(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: "relation .* does not exist", Message: "Use list_tables to see available tables."},
		{Pattern: "does not exist", Message: "Check the object name."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt, patterns := m.Match(`relation "userz" does not exist`)
	if !strings.Contains(prompt, "list_tables") || !strings.Contains(prompt, "Check the object name.") {
		t.Errorf("expected both messages, got %q", prompt)
	}
	if len(patterns) != 2 {
		t.Errorf("expected 2 patterns, got %v", patterns)
	}
}

func TestNoMatch(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{{Pattern: "timeout", Message: "slow"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt, patterns := m.Match("syntax error at or near SELECT")
	if prompt != "" {
		t.Errorf("expected empty prompt, got %q", prompt)
	}
	if patterns != nil {
		t.Errorf("expected nil patterns, got %v", patterns)
	}
}

func TestInvalidPattern(t *testing.T) {
	t.Parallel()
	if _, err := NewMatcher([]Rule{{Pattern: "(bad", Message: "x"}}); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestNoRules(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt, _ := m.Match("anything"); prompt != "" {
		t.Errorf("expected empty prompt, got %q", prompt)
	}
}
