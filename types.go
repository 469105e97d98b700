package pgveil

import "github.com/pgveil/pgveil/internal/classify"

// QueryInput is the input for the Query tool.
type QueryInput struct {
	SQL string `json:"sql"`
}

// QueryOutput is the output of the Query tool. All failures (Postgres
// errors, access denials, hook rejections, Go errors) are placed in Error.
// Access denials additionally set Denied, so callers can distinguish a
// policy decision from a database failure; database errors are surfaced
// verbatim and never carry Denied.
type QueryOutput struct {
	Columns      []string                 `json:"columns"`
	Rows         []map[string]interface{} `json:"rows"`
	RowsAffected int64                    `json:"rows_affected"`
	Command      string                   `json:"command,omitempty"`
	Denied       bool                     `json:"denied,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// Decision is the caller-visible outcome of classify-and-decide.
type Decision struct {
	Allowed       bool             `json:"allowed"`
	Command       classify.Command `json:"command"`
	Level         string           `json:"level"`
	Permitted     []string         `json:"permitted"`
	DeniedSummary string           `json:"denied_summary,omitempty"`
}

// ListTablesInput is the input for the ListTables tool.
type ListTablesInput struct{}

// TableEntry represents a single table/view in the ListTables output.
type TableEntry struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"` // "table", "view", "materialized_view", "foreign_table", "partitioned_table"
	Owner  string `json:"owner"`
}

// ListTablesOutput is the output of the ListTables tool. Hidden tables are
// already removed.
type ListTablesOutput struct {
	Tables []TableEntry `json:"tables"`
	Error  string       `json:"error,omitempty"`
}

// DescribeTableInput is the input for the DescribeTable tool.
type DescribeTableInput struct {
	Table  string `json:"table"`
	Schema string `json:"schema"`
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Nullable     bool   `json:"nullable"`
	Default      string `json:"default,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// IndexInfo describes a single index.
type IndexInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
	IsPrimary  bool   `json:"is_primary"`
}

// ConstraintInfo describes a single constraint.
type ConstraintInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // PRIMARY KEY, FOREIGN KEY, UNIQUE, CHECK
	Definition string `json:"definition"`
}

// ForeignKeyInfo describes a single foreign key.
type ForeignKeyInfo struct {
	Name              string `json:"name"`
	Columns           string `json:"columns"`
	ReferencedTable   string `json:"referenced_table"`
	ReferencedColumns string `json:"referenced_columns"`
	OnUpdate          string `json:"on_update"`
	OnDelete          string `json:"on_delete"`
}

// DescribeTableOutput is the output of the DescribeTable tool.
// Hidden is the policy sentinel: when true, the table exists in
// configuration as hidden and no metadata is returned. A Hidden output is
// distinct from a table whose Columns list is empty.
type DescribeTableOutput struct {
	Schema      string           `json:"schema"`
	Name        string           `json:"name"`
	Type        string           `json:"type,omitempty"` // "table", "view", "materialized_view", "foreign_table", "partitioned_table"
	Definition  string           `json:"definition,omitempty"`
	Columns     []ColumnInfo     `json:"columns"`
	Indexes     []IndexInfo      `json:"indexes"`
	Constraints []ConstraintInfo `json:"constraints"`
	ForeignKeys []ForeignKeyInfo `json:"foreign_keys"`
	Hidden      bool             `json:"hidden,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// GetSchemaInput is the input for the GetSchema tool. Leaving Table empty
// requests column metadata for the whole database.
type GetSchemaInput struct {
	Table  string `json:"table"`
	Schema string `json:"schema"`
}

// SchemaColumn is one information-schema-shaped column metadata row.
type SchemaColumn struct {
	TableSchema string `json:"table_schema"`
	TableName   string `json:"table_name"`
	ColumnName  string `json:"column_name"`
	DataType    string `json:"data_type"`
	IsNullable  bool   `json:"is_nullable"`
}

// GetSchemaOutput is the output of the GetSchema tool. In single-table
// mode, Hidden set with an empty Columns list is the hidden-table
// sentinel.
type GetSchemaOutput struct {
	Columns []SchemaColumn `json:"columns"`
	Hidden  bool           `json:"hidden,omitempty"`
	Table   string         `json:"table,omitempty"`
	Error   string         `json:"error,omitempty"`
}
