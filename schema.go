package pgveil

import (
	"context"
	"fmt"
	"time"

	"github.com/pgveil/pgveil/internal/masking"
)

const allColumnsSQL = `
SELECT
    c.table_schema,
    c.table_name,
    c.column_name,
    c.data_type,
    CASE c.is_nullable WHEN 'YES' THEN true ELSE false END AS is_nullable
FROM information_schema.columns c
WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY c.table_schema, c.table_name, c.ordinal_position;
`

const tableColumnsSQL = `
SELECT
    c.table_schema,
    c.table_name,
    c.column_name,
    c.data_type,
    CASE c.is_nullable WHEN 'YES' THEN true ELSE false END AS is_nullable
FROM information_schema.columns c
WHERE c.table_schema = $1
  AND c.table_name = $2
ORDER BY c.ordinal_position;
`

// GetSchema returns information-schema column metadata with the
// visibility filters applied. With an empty Table it runs in
// whole-database mode: rows belonging to hidden tables or naming hidden
// columns are removed. With a table named it runs in single-table mode:
// a hidden table short-circuits to the Hidden sentinel (distinct from a
// table with no visible columns); otherwise hidden columns are dropped
// from the result. Metadata requests bypass the access policy engine.
func (p *PgVeil) GetSchema(ctx context.Context, input GetSchemaInput) (*GetSchemaOutput, error) {
	startTime := time.Now()

	schema := input.Schema
	if schema == "" {
		schema = "public"
	}

	// Single-table mode: hidden-table sentinel before any database work.
	if input.Table != "" && p.masking.TableHidden(input.Table) {
		p.logger.Info().
			Str("schema", schema).
			Str("table", input.Table).
			Msg("GetSchema: table hidden by policy")
		return &GetSchemaOutput{Hidden: true, Table: input.Table, Columns: []SchemaColumn{}}, nil
	}

	// Acquire semaphore
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("GetSchema: failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(p.semaphore), ctx.Err())
	}
	defer func() { <-p.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.Query.GetSchemaTimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := p.pool.Acquire(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	var columns []SchemaColumn
	query := allColumnsSQL
	args := []interface{}{}
	if input.Table != "" {
		query = tableColumnsSQL
		args = []interface{}{schema, input.Table}
	}

	rows, err := conn.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetSchema query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var col SchemaColumn
		if err := rows.Scan(&col.TableSchema, &col.TableName, &col.ColumnName, &col.DataType, &col.IsNullable); err != nil {
			return nil, fmt.Errorf("GetSchema scan failed: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetSchema rows error: %w", err)
	}

	total := len(columns)
	if input.Table == "" {
		columns = masking.FilterSchema(p.masking, columns,
			func(c SchemaColumn) string { return c.TableName },
			func(c SchemaColumn) string { return c.ColumnName })
	} else {
		columns = masking.FilterColumns(p.masking, columns,
			func(c SchemaColumn) string { return c.ColumnName })
	}

	if columns == nil {
		columns = []SchemaColumn{}
	}

	logEvent := p.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("column_count", len(columns))
	if input.Table != "" {
		logEvent = logEvent.Str("table", input.Table)
	}
	if filtered := total - len(columns); filtered > 0 {
		logEvent = logEvent.Int("filtered_columns", filtered)
	}
	logEvent.Msg("GetSchema executed")

	return &GetSchemaOutput{Columns: columns, Table: input.Table}, nil
}
