package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgveil "github.com/pgveil/pgveil"
)

func TestDoctorValidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := validServerConfig()
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	// All checks should pass
	if strings.Contains(output, "✗") {
		t.Fatalf("expected all checks to pass, but found failures in output:\n%s", output)
	}

	// Should contain pass marks
	if !strings.Contains(output, "✓") {
		t.Fatalf("expected pass marks (✓) in output:\n%s", output)
	}

	// Should contain config checks
	if !strings.Contains(output, "Config file readable") {
		t.Fatalf("expected 'Config file readable' check in output:\n%s", output)
	}
	if !strings.Contains(output, "Config file is valid JSON") {
		t.Fatalf("expected 'Config file is valid JSON' check in output:\n%s", output)
	}
	if !strings.Contains(output, "connection.dbname is set") {
		t.Fatalf("expected 'connection.dbname is set' check in output:\n%s", output)
	}
	if !strings.Contains(output, "server.port is > 0") {
		t.Fatalf("expected 'server.port is > 0' check in output:\n%s", output)
	}
	if !strings.Contains(output, "access.level is valid") {
		t.Fatalf("expected 'access.level is valid' check in output:\n%s", output)
	}
	if !strings.Contains(output, "All regex patterns compile") {
		t.Fatalf("expected 'All regex patterns compile' check in output:\n%s", output)
	}

	// Should contain the policy summary
	if !strings.Contains(output, "Effective Policy") {
		t.Fatalf("expected 'Effective Policy' section in output:\n%s", output)
	}
	if !strings.Contains(output, "Access level:       readonly") {
		t.Fatalf("expected readonly access level in policy summary:\n%s", output)
	}
	if !strings.Contains(output, "SELECT") {
		t.Fatalf("expected SELECT in permitted commands:\n%s", output)
	}
	if !strings.Contains(output, "Masking:            enabled") {
		t.Fatalf("expected masking enabled by default in policy summary:\n%s", output)
	}

	// Should contain the connection snippet
	if !strings.Contains(output, "Client Connection") {
		t.Fatalf("expected 'Client Connection' section in output:\n%s", output)
	}
	if !strings.Contains(output, `"pgveil"`) {
		t.Fatalf("expected server name 'pgveil' in connection snippet:\n%s", output)
	}
}

func TestDoctorMissingConfig(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := doctor(&buf, false, "/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for missing config:\n%s", output)
	}
	if !strings.Contains(output, "Config file readable") {
		t.Fatalf("expected 'Config file readable' check in output:\n%s", output)
	}

	// Should not contain the connection snippet when config is missing
	if strings.Contains(output, "Client Connection") {
		t.Fatalf("expected no connection snippet when config is missing:\n%s", output)
	}
}

func TestDoctorInvalidJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{invalid json}"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for invalid JSON:\n%s", output)
	}
	if !strings.Contains(output, "Config file is valid JSON") {
		t.Fatalf("expected 'Config file is valid JSON' check in output:\n%s", output)
	}

	if strings.Contains(output, "Client Connection") {
		t.Fatalf("expected no connection snippet when JSON is invalid:\n%s", output)
	}
}

func TestDoctorMissingDBName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Connection.DBName = ""
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	// Should show failure for dbname
	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for missing dbname:\n%s", output)
	}
	if !strings.Contains(output, "connection.dbname is set") {
		t.Fatalf("expected 'connection.dbname is set' check in output:\n%s", output)
	}

	// Should still show "fix issues" message
	if !strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected 'Fix the issues above' message in output:\n%s", output)
	}
}

func TestDoctorInvalidAccessLevel(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Access.Level = "superuser"
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for invalid access level:\n%s", output)
	}
	if !strings.Contains(output, "access.level is valid") {
		t.Fatalf("expected 'access.level is valid' check in output:\n%s", output)
	}
}

func TestDoctorUnrecognizedCustomCommand(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Access.Level = "custom"
	cfg.Access.CustomAllowedCommands = []string{"SELECT", "FROBNICATE"}
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for unrecognized custom command:\n%s", output)
	}
	if !strings.Contains(output, "custom_allowed_commands[1]") {
		t.Fatalf("expected custom_allowed_commands[1] flagged in output:\n%s", output)
	}
}

func TestDoctorUnrecognizedCommandTimeoutKey(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Query.CommandTimeouts = map[string]int{"FROBNICATE": 60}
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for unrecognized command timeout key:\n%s", output)
	}
	if !strings.Contains(output, "command_timeouts") {
		t.Fatalf("expected command_timeouts flagged in output:\n%s", output)
	}
}

func TestDoctorInvalidRegex(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.ErrorPrompts = []pgveil.ErrorPromptRule{
		{Pattern: "[invalid(regex", Message: "test"},
	}
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for invalid regex:\n%s", output)
	}
	if !strings.Contains(output, "error_prompts[0] regex compiles") {
		t.Fatalf("expected 'error_prompts[0] regex compiles' check in output:\n%s", output)
	}
}

func TestDoctorPortInSnippet(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Server.Port = 9999
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	// Endpoint line plus the JSON snippet both carry the URL
	expectedURL := "http://localhost:9999/mcp"
	count := strings.Count(output, expectedURL)
	if count != 2 {
		t.Fatalf("expected %s to appear 2 times in the snippet, found %d times:\n%s", expectedURL, count, output)
	}
}

func TestDoctorConnectivitySkippedWithoutConnString(t *testing.T) {
	t.Setenv("PGVEIL_PG_CONNSTRING", "")
	dir := t.TempDir()
	cfg := validServerConfig()
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "Database connection check skipped") {
		t.Fatalf("expected skipped connectivity check in output:\n%s", output)
	}
	if strings.Contains(output, "✗") {
		t.Fatalf("skipped connectivity check must not fail the doctor:\n%s", output)
	}
}

func TestDoctorConnectivityUnreachable(t *testing.T) {
	// Port 1 is never a Postgres listener, the dial fails immediately.
	t.Setenv("PGVEIL_PG_CONNSTRING", "host=127.0.0.1 port=1 dbname=nope user=u password=p sslmode=disable")
	dir := t.TempDir()
	cfg := validServerConfig()
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for unreachable database:\n%s", output)
	}
	if !strings.Contains(output, "Database connection") {
		t.Fatalf("expected 'Database connection' check in output:\n%s", output)
	}
	// Connectivity is diagnostic, not a config error, the summary still prints.
	if !strings.Contains(output, "Effective Policy") {
		t.Fatalf("expected policy summary despite failed connection:\n%s", output)
	}
}

func TestDoctorMaskingDisabled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := validServerConfig()
	disabled := false
	cfg.Masking.Enabled = &disabled
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "Masking:            disabled") {
		t.Fatalf("expected masking disabled in policy summary:\n%s", output)
	}
}
