package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgveil "github.com/pgveil/pgveil"
)

// validServerConfig returns a minimal valid ServerConfig for testing.
func validServerConfig() pgveil.ServerConfig {
	return pgveil.ServerConfig{
		Config: pgveil.Config{
			Pool: pgveil.PoolConfig{MaxConns: 5},
			Access: pgveil.AccessConfig{
				Level: "readonly",
			},
			Query: pgveil.QueryConfig{
				DefaultTimeoutSeconds:       30,
				ListTablesTimeoutSeconds:    10,
				DescribeTableTimeoutSeconds: 10,
				GetSchemaTimeoutSeconds:     10,
			},
		},
		Server: pgveil.ServerSettings{
			Port: 8080,
		},
		Connection: pgveil.ConnectionConfig{
			Host:   "localhost",
			Port:   5432,
			DBName: "testdb",
		},
	}
}

func writeConfigFile(t *testing.T, dir string, config pgveil.ServerConfig) string {
	t.Helper()
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// Note: Tests using t.Setenv() cannot use t.Parallel() in Go.

func TestLoadConfigValid(t *testing.T) {
	dir := t.TempDir()
	cfg := validServerConfig()
	path := writeConfigFile(t, dir, cfg)

	t.Setenv("PGVEIL_CONFIG_PATH", path)

	loaded, err := loadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", loaded.Server.Port)
	}
	if loaded.Pool.MaxConns != 5 {
		t.Fatalf("expected max_conns 5, got %d", loaded.Pool.MaxConns)
	}
	if loaded.Access.Level != "readonly" {
		t.Fatalf("expected access level 'readonly', got %q", loaded.Access.Level)
	}
	if loaded.Query.DefaultTimeoutSeconds != 30 {
		t.Fatalf("expected default_timeout_seconds 30, got %d", loaded.Query.DefaultTimeoutSeconds)
	}
	if loaded.Connection.Host != "localhost" {
		t.Fatalf("expected host 'localhost', got %q", loaded.Connection.Host)
	}
	if loaded.Connection.DBName != "testdb" {
		t.Fatalf("expected dbname 'testdb', got %q", loaded.Connection.DBName)
	}
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Server.Port = 9999
	path := writeConfigFile(t, dir, cfg)

	t.Setenv("PGVEIL_CONFIG_PATH", path)

	loaded, err := loadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Server.Port != 9999 {
		t.Fatalf("expected port 9999 from env path, got %d", loaded.Server.Port)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	t.Setenv("PGVEIL_CONFIG_PATH", "/nonexistent/path/config.json")

	_, err := loadServerConfig()
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "/nonexistent/path/config.json") {
		t.Fatalf("expected error to contain config path, got %q", err.Error())
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{invalid json}"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	t.Setenv("PGVEIL_CONFIG_PATH", path)

	_, err := loadServerConfig()
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	errMsg := err.Error()
	if !strings.Contains(errMsg, "parse") && !strings.Contains(errMsg, "unmarshal") && !strings.Contains(errMsg, "invalid") {
		t.Fatalf("expected parse/unmarshal/invalid error, got %q", errMsg)
	}
}

func TestBuildConnString(t *testing.T) {
	t.Parallel()
	conn := pgveil.ConnectionConfig{
		Host:    "db.example.com",
		Port:    5433,
		DBName:  "appdb",
		SSLMode: "require",
	}
	got := buildConnString(conn, "alice", "s3cret")
	want := "host=db.example.com port=5433 dbname=appdb user=alice password=s3cret sslmode=require"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBuildConnStringOmitsEmptyFields(t *testing.T) {
	t.Parallel()
	conn := pgveil.ConnectionConfig{
		Host:   "localhost",
		DBName: "appdb",
	}
	got := buildConnString(conn, "", "")
	want := "host=localhost dbname=appdb"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
