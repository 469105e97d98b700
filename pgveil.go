package pgveil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pgveil/pgveil/internal/access"
	"github.com/pgveil/pgveil/internal/classify"
	"github.com/pgveil/pgveil/internal/errprompt"
	"github.com/pgveil/pgveil/internal/masking"
	"github.com/pgveil/pgveil/internal/sanitize"
	"github.com/pgveil/pgveil/internal/timeout"
)

// PgVeil is the core engine: it gates statements through the access-level
// policy, executes allowed ones, and masks results and metadata.
// All exported methods are safe for concurrent use from multiple
// goroutines; the policy objects are immutable after New().
type PgVeil struct {
	config     Config
	pool       *pgxpool.Pool
	semaphore  chan struct{}
	access     *access.Engine
	masking    *masking.Policy
	hooks      []BeforeQueryHookEntry
	afterHooks []AfterQueryHookEntry
	sanitizer  *sanitize.Sanitizer
	errPrompts *errprompt.Matcher
	timeoutMgr *timeout.Manager
	logger     zerolog.Logger
}

// New creates a new PgVeil instance.
// connString is the PostgreSQL connection string (must include
// credentials); Config.Connection is a CLI concern and is ignored here.
// Panics on invalid config. Returns error only for runtime failures
// (e.g. pool creation).
func New(ctx context.Context, connString string, config Config, logger zerolog.Logger) (*PgVeil, error) {
	// --- Config validation (panics on invalid config) ---

	if connString == "" {
		panic("pgveil: connString must be non-empty")
	}
	if config.Pool.MaxConns <= 0 {
		panic("pgveil: pool.max_conns must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("pgveil: query.default_timeout_seconds must be > 0")
	}
	if config.Query.ListTablesTimeoutSeconds <= 0 {
		panic("pgveil: query.list_tables_timeout_seconds must be > 0")
	}
	if config.Query.DescribeTableTimeoutSeconds <= 0 {
		panic("pgveil: query.describe_table_timeout_seconds must be > 0")
	}
	if config.Query.GetSchemaTimeoutSeconds == 0 {
		config.Query.GetSchemaTimeoutSeconds = config.Query.DescribeTableTimeoutSeconds
	}
	if config.Query.GetSchemaTimeoutSeconds < 0 {
		panic("pgveil: query.get_schema_timeout_seconds must be > 0")
	}

	// Apply defaults for zero values
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.MaxSQLLength < 0 {
		panic("pgveil: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("pgveil: query.max_result_length must be > 0")
	}

	hasHooks := len(config.BeforeQueryHooks) > 0 || len(config.AfterQueryHooks) > 0
	if hasHooks && config.DefaultHookTimeoutSeconds <= 0 {
		panic("pgveil: default_hook_timeout_seconds must be > 0 when hooks are configured")
	}
	for _, entry := range config.BeforeQueryHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("pgveil: before_query hook %q has negative timeout", entry.Name))
		}
	}
	for _, entry := range config.AfterQueryHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("pgveil: after_query hook %q has negative timeout", entry.Name))
		}
	}

	// --- Access policy engine ---

	level, err := access.ParseLevel(config.Access.Level)
	if err != nil {
		panic(fmt.Sprintf("pgveil: invalid access.level %q", config.Access.Level))
	}
	accessEngine, err := access.NewEngine(access.Config{
		Level:          level,
		CustomCommands: config.Access.CustomAllowedCommands,
	})
	if err != nil {
		panic(fmt.Sprintf("pgveil: %v", err))
	}

	// --- Masking policy ---

	maskPolicy := masking.NewPolicy(masking.Config{
		Enabled:         config.Masking.MaskingEnabled(),
		HiddenTables:    config.Masking.HiddenTables,
		HiddenColumns:   config.Masking.HiddenColumns,
		SensitiveFields: config.Masking.ExtraSensitiveFields,
	})

	// --- Configure pgxpool ---

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.Pool.MaxConns)
	poolConfig.MinConns = int32(config.Pool.MinConns)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	if config.Pool.MaxConnLifetime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnLifetime)
		if err != nil {
			panic(fmt.Sprintf("pgveil: invalid pool.max_conn_lifetime %q: %v", config.Pool.MaxConnLifetime, err))
		}
		poolConfig.MaxConnLifetime = d
	}
	if config.Pool.MaxConnIdleTime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnIdleTime)
		if err != nil {
			panic(fmt.Sprintf("pgveil: invalid pool.max_conn_idle_time %q: %v", config.Pool.MaxConnIdleTime, err))
		}
		poolConfig.MaxConnIdleTime = d
	}
	if config.Pool.HealthCheckPeriod != "" {
		d, err := time.ParseDuration(config.Pool.HealthCheckPeriod)
		if err != nil {
			panic(fmt.Sprintf("pgveil: invalid pool.health_check_period %q: %v", config.Pool.HealthCheckPeriod, err))
		}
		poolConfig.HealthCheckPeriod = d
	}

	// Session-level settings: readonly level maps onto the server-side
	// read-only default as a second line of defense behind the policy
	// engine.
	readOnlySession := level == access.LevelReadOnly
	if readOnlySession || config.Timezone != "" {
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if readOnlySession {
				if _, err := conn.Exec(ctx, "SET default_transaction_read_only = on"); err != nil {
					return fmt.Errorf("failed to SET default_transaction_read_only: %w", err)
				}
			}
			if config.Timezone != "" {
				escaped := strings.ReplaceAll(config.Timezone, "'", "''")
				if _, err := conn.Exec(ctx, fmt.Sprintf("SET timezone = '%s'", escaped)); err != nil {
					return fmt.Errorf("failed to SET timezone: %w", err)
				}
			}
			return nil
		}
	}

	// --- Create pool ---

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// --- Supporting components ---

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		panic(fmt.Sprintf("pgveil: %v", err))
	}
	matcher, err := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		panic(fmt.Sprintf("pgveil: %v", err))
	}

	commandTimeouts := make(map[classify.Command]time.Duration, len(config.Query.CommandTimeouts))
	for token, seconds := range config.Query.CommandTimeouts {
		commandTimeouts[classify.Parse(token)] = time.Duration(seconds) * time.Second
	}
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout:  time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		CommandTimeouts: commandTimeouts,
		Rules:           timeoutRules,
	})
	if err != nil {
		panic(fmt.Sprintf("pgveil: %v", err))
	}

	return &PgVeil{
		config:     config,
		pool:       pool,
		semaphore:  make(chan struct{}, config.Pool.MaxConns),
		access:     accessEngine,
		masking:    maskPolicy,
		hooks:      config.BeforeQueryHooks,
		afterHooks: config.AfterQueryHooks,
		sanitizer:  san,
		errPrompts: matcher,
		timeoutMgr: tmgr,
		logger:     logger,
	}, nil
}

// ClassifyAndDecide classifies the given SQL and checks it against the
// configured access level without executing anything. Pure and
// side-effect-free; the advisory DeniedSummary is set only for denials.
func (p *PgVeil) ClassifyAndDecide(sql string) Decision {
	d := p.access.Decide(sql)
	out := Decision{
		Allowed:   d.Allowed,
		Command:   d.Command,
		Level:     string(d.Level),
		Permitted: d.Permitted,
	}
	if !d.Allowed {
		out.DeniedSummary = d.DeniedSummary()
	}
	return out
}

// AccessLevel returns the configured access level name.
func (p *PgVeil) AccessLevel() string {
	return string(p.access.Level())
}

// PermittedCommands returns the sorted permitted command list.
func (p *PgVeil) PermittedCommands() []string {
	return p.access.Permitted()
}

// Ping verifies database connectivity.
func (p *PgVeil) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the connection pool. Accepts context for API
// forward-compatibility; pgxpool.Pool.Close() does not support
// context-based shutdown.
func (p *PgVeil) Close(ctx context.Context) {
	p.pool.Close()
}

// mapSanitizationRules converts pgveil SanitizationRules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

// mapErrorPromptRules converts pgveil ErrorPromptRules to internal errprompt.Rules.
func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}
