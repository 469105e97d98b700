package pgveil

import (
	"context"
	"time"
)

// Config is the base configuration used by library mode via New().
type Config struct {
	Pool                      PoolConfig         `json:"pool"`
	Access                    AccessConfig       `json:"access"`
	Masking                   MaskingConfig      `json:"masking"`
	Query                     QueryConfig        `json:"query"`
	ErrorPrompts              []ErrorPromptRule  `json:"error_prompts"`
	Sanitization              []SanitizationRule `json:"sanitization"`
	Timezone                  string             `json:"timezone"`
	DefaultHookTimeoutSeconds int                `json:"default_hook_timeout_seconds"`

	// Library mode: Go function hooks (not serializable).
	BeforeQueryHooks []BeforeQueryHookEntry `json:"-"`
	AfterQueryHooks  []AfterQueryHookEntry  `json:"-"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection ConnectionConfig `json:"connection"`
	Server     ServerSettings   `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// AccessConfig selects the access level and, for the custom level, the
// permitted command tokens.
type AccessConfig struct {
	// Level is one of "readonly", "modify", "ddl", "custom".
	Level string `json:"level"`
	// CustomAllowedCommands is consulted only for level "custom".
	// An empty list denies every statement.
	CustomAllowedCommands []string `json:"custom_allowed_commands"`
}

// MaskingConfig controls result and metadata masking. Enabled defaults to
// true; set "enabled": false explicitly to pass data through unmasked.
type MaskingConfig struct {
	Enabled              *bool    `json:"enabled"`
	HiddenTables         []string `json:"hidden_tables"`
	HiddenColumns        []string `json:"hidden_columns"`
	ExtraSensitiveFields []string `json:"extra_sensitive_fields"`
}

// MaskingEnabled resolves the Enabled pointer with its default of true.
func (m MaskingConfig) MaskingEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ConnectionConfig holds database connection parameters used by CLI mode.
type ConnectionConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	DBName  string `json:"dbname"`
	SSLMode string `json:"sslmode"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxConns          int    `json:"max_conns"`
	MinConns          int    `json:"min_conns"`
	MaxConnLifetime   string `json:"max_conn_lifetime"`
	MaxConnIdleTime   string `json:"max_conn_idle_time"`
	HealthCheckPeriod string `json:"health_check_period"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds       int            `json:"default_timeout_seconds"`
	ListTablesTimeoutSeconds    int            `json:"list_tables_timeout_seconds"`
	DescribeTableTimeoutSeconds int            `json:"describe_table_timeout_seconds"`
	GetSchemaTimeoutSeconds     int            `json:"get_schema_timeout_seconds"`
	MaxSQLLength                int            `json:"max_sql_length"`
	MaxResultLength             int            `json:"max_result_length"`
	CommandTimeouts             map[string]int `json:"command_timeouts"` // keyword -> seconds
	TimeoutRules                []TimeoutRule  `json:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// SanitizationRule defines a regex-based field sanitization rule.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

// BeforeQueryHook can inspect and modify queries before execution.
type BeforeQueryHook interface {
	Run(ctx context.Context, query string) (string, error)
}

// AfterQueryHook can inspect and modify results after execution.
type AfterQueryHook interface {
	Run(ctx context.Context, result *QueryOutput) (*QueryOutput, error)
}

// BeforeQueryHookEntry wraps a BeforeQueryHook with metadata.
type BeforeQueryHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    BeforeQueryHook
}

// AfterQueryHookEntry wraps an AfterQueryHook with metadata.
type AfterQueryHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    AfterQueryHook
}
