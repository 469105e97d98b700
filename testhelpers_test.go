package pgveil_test

import (
	"context"
	"os"
	"testing"

	pgveil "github.com/pgveil/pgveil"
	"github.com/rickchristie/govner/pgflock/client"
	"github.com/rs/zerolog"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

func acquireTestDB(t *testing.T) string {
	t.Helper()
	connStr, err := client.Lock(pgflockLockerPort, t.Name(), pgflockPassword)
	if err != nil {
		t.Fatalf("Failed to acquire test database: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// defaultTestConfig returns a Config at level ddl so setup statements can
// create and populate tables.
func defaultTestConfig() pgveil.Config {
	return pgveil.Config{
		Pool: pgveil.PoolConfig{MaxConns: 5},
		Access: pgveil.AccessConfig{
			Level: "ddl",
		},
		Query: pgveil.QueryConfig{
			DefaultTimeoutSeconds:       30,
			ListTablesTimeoutSeconds:    10,
			DescribeTableTimeoutSeconds: 10,
			GetSchemaTimeoutSeconds:     10,
			MaxSQLLength:                100000,
			MaxResultLength:             100000,
		},
	}
}

func newTestInstance(t *testing.T, config pgveil.Config) (*pgveil.PgVeil, string) {
	t.Helper()
	connStr := acquireTestDB(t)
	ctx := context.Background()
	p, err := pgveil.New(ctx, connStr, config, testLogger())
	if err != nil {
		t.Fatalf("Failed to create PgVeil: %v", err)
	}
	t.Cleanup(func() { p.Close(ctx) })
	return p, connStr
}

func setupTable(t *testing.T, p *pgveil.PgVeil, sql string) {
	t.Helper()
	output := p.Query(context.Background(), pgveil.QueryInput{SQL: sql})
	if output.Error != "" {
		t.Fatalf("setup failed: %s", output.Error)
	}
}

// newLeveledTestInstance creates a PgVeil instance with the given config
// against a database pre-populated by setupFn. Setup runs through a
// separate ddl-level instance which is closed before the instance under
// test is created.
func newLeveledTestInstance(t *testing.T, config pgveil.Config, setupFn func(t *testing.T, p *pgveil.PgVeil)) *pgveil.PgVeil {
	t.Helper()
	connStr := acquireTestDB(t)
	ctx := context.Background()

	setupP, err := pgveil.New(ctx, connStr, defaultTestConfig(), testLogger())
	if err != nil {
		t.Fatalf("failed to create setup instance: %v", err)
	}
	setupFn(t, setupP)
	setupP.Close(ctx)

	p, err := pgveil.New(ctx, connStr, config, testLogger())
	if err != nil {
		t.Fatalf("failed to create instance under test: %v", err)
	}
	t.Cleanup(func() { p.Close(ctx) })
	return p
}
