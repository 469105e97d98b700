// Package pgveil mediates PostgreSQL access for AI agents through the
// Model Context Protocol (MCP), gating every statement through a
// configured access level and masking sensitive data on the way out.
//
// Each statement is classified by its leading SQL keyword and checked
// against the permitted-command set of the active access level
// (readonly, modify, ddl, or a custom command list). Denials come back
// as structured results naming the level and the permitted commands —
// denied statements never reach the database. Results pass through a
// masking layer that drops hidden columns, redacts sensitive field
// values with "***" (nulls are never redacted), and filters hidden
// tables out of listings and schema metadata.
//
// # Library Usage
//
//	p, err := pgveil.New(ctx, connString, pgveil.Config{
//		Pool:   pgveil.PoolConfig{MaxConns: 10},
//		Access: pgveil.AccessConfig{Level: "readonly"},
//		Masking: pgveil.MaskingConfig{
//			HiddenTables:  []string{"audit_log"},
//			HiddenColumns: []string{"salary"},
//		},
//		Query: pgveil.QueryConfig{
//			DefaultTimeoutSeconds:       30,
//			ListTablesTimeoutSeconds:    10,
//			DescribeTableTimeoutSeconds: 10,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close(ctx)
//
//	// Use directly
//	output := p.Query(ctx, pgveil.QueryInput{SQL: "SELECT * FROM users LIMIT 10"})
//
//	// Or register as MCP tools
//	pgveil.RegisterMCPTools(mcpServer, p)
//
// # Access decisions
//
// ClassifyAndDecide exposes the gate without executing anything:
//
//	d := p.ClassifyAndDecide("DELETE FROM users")
//	// d.Allowed == false under readonly; d.DeniedSummary names the
//	// level and the sorted permitted commands.
//
// The classifier is lexical: it strips comments and reads the first
// keyword. It is a policy gate, not a sandbox — it does not defend
// against adversarial SQL obfuscation.
//
// # Hooks
//
// BeforeQuery and AfterQuery hooks run as a middleware chain around
// execution. AfterQuery hooks run before transaction commit for write
// statements, enabling guardrails like rolling back when too many rows
// are affected; they never see unmasked data.
package pgveil
