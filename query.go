package pgveil

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/pgveil/pgveil/internal/masking"
)

// Query executes the full statement pipeline and returns only QueryOutput.
// The statement is classified and checked against the access policy before
// it ever reaches the database; denials come back as a structured result
// with Denied set, carrying the active level and permitted command list.
// All other failures (Postgres errors, hook rejections, Go errors) are
// converted to output.Error and evaluated against error_prompts, so
// callers only need to check output.Error, never a Go error.
func (p *PgVeil) Query(ctx context.Context, input QueryInput) *QueryOutput {
	startTime := time.Now()
	sql := input.SQL

	// 1. Acquire semaphore (respects context cancellation to prevent deadlock)
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return p.handleError(fmt.Errorf("failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(p.semaphore), ctx.Err()))
	}
	defer func() { <-p.semaphore }()

	// 2. Check SQL length before any processing
	if len(sql) > p.config.Query.MaxSQLLength {
		return p.handleError(fmt.Errorf("SQL query too long: %d bytes exceeds maximum of %d bytes", len(sql), p.config.Query.MaxSQLLength))
	}

	// 3. Run BeforeQuery hooks (middleware chain)
	var beforeHooks, afterHooks []string
	var err error
	if len(p.hooks) > 0 {
		sql, err = p.runBeforeHooks(ctx, sql)
		if err != nil {
			return p.handleError(err)
		}
		for _, entry := range p.hooks {
			beforeHooks = append(beforeHooks, entry.Name)
		}
	}

	// 4. Access decision on the potentially modified statement.
	// A denial is a policy outcome, not an error: it is never executed
	// and never mixed with database failures.
	decision := p.access.Decide(sql)
	if !decision.Allowed {
		summary := decision.DeniedSummary()
		p.logger.Warn().
			Str("sql", truncateForLog(sql, 200)).
			Str("command", string(decision.Command)).
			Str("level", string(decision.Level)).
			Msg("query denied by access policy")
		return &QueryOutput{
			Command: string(decision.Command),
			Denied:  true,
			Error:   summary,
		}
	}

	// 5. Determine timeout
	queryTimeout, timeoutSource := p.timeoutMgr.Resolve(sql)
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 6. Acquire connection and execute in transaction
	conn, err := p.pool.Acquire(queryCtx)
	if err != nil {
		return p.handleError(err)
	}
	defer conn.Release()

	tx, err := conn.Begin(queryCtx)
	if err != nil {
		return p.handleError(err)
	}
	defer tx.Rollback(ctx) // parent ctx: if the query timed out, queryCtx is already cancelled

	rows, err := tx.Query(queryCtx, sql)
	if err != nil {
		return p.handleError(err)
	}

	// 7. Collect results and field descriptors
	result, fields, err := p.collectRows(rows)
	if err != nil {
		return p.handleError(err)
	}
	result.Command = string(decision.Command)

	// 8. Mask before anything else can observe the data: hidden columns
	// dropped, sensitive values redacted. Hooks and sanitization only see
	// the masked result.
	maskedRows, visibleFields := p.masking.MaskRows(result.Rows, fields)
	result.Rows = maskedRows
	// MaskRows skips field filtering on empty results, but the column name
	// list alone must not reveal hidden columns. Rebuild Columns from the
	// policy regardless of row count.
	if p.masking.Enabled() {
		columns := make([]string, 0, len(visibleFields))
		for _, f := range visibleFields {
			if f.Name == "" || p.masking.ColumnHidden(f.Name) {
				continue
			}
			columns = append(columns, f.Name)
		}
		result.Columns = columns
	}

	// 9. Detect read-only vs write statement
	isReadOnly := isReadOnlyStatement(sql)

	// 10. For read-only queries, rollback immediately (no commit needed)
	if isReadOnly {
		tx.Rollback(ctx)
	}

	// 11. AfterQuery hooks run BEFORE commit for write queries, so a hook
	// rejection triggers rollback.
	finalResult := result
	if len(p.afterHooks) > 0 {
		finalResult, err = p.runAfterHooks(ctx, result)
		if err != nil {
			return p.handleError(err)
		}
		for _, entry := range p.afterHooks {
			afterHooks = append(afterHooks, entry.Name)
		}
	}

	// 12. Commit writes after hooks have approved the result. Uses
	// queryCtx so the whole pipeline stays within the query timeout.
	if !isReadOnly {
		if err := tx.Commit(queryCtx); err != nil {
			return p.handleError(err)
		}
	}

	// 13. Apply sanitization (per-field, recursive into JSONB/arrays)
	finalResult.Rows = p.sanitizer.SanitizeRows(finalResult.Rows)

	// 14. Apply max result length truncation
	p.truncateIfNeeded(finalResult)

	// 15. Log successful execution with pipeline details
	logEvent := p.logger.Info().
		Str("sql", truncateForLog(sql, 200)).
		Str("command", string(decision.Command)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(finalResult.Rows)).
		Int64("rows_affected", finalResult.RowsAffected)
	if len(beforeHooks) > 0 {
		logEvent = logEvent.Strs("before_hooks", beforeHooks)
	}
	if len(afterHooks) > 0 {
		logEvent = logEvent.Strs("after_hooks", afterHooks)
	}
	if timeoutSource != "" {
		logEvent = logEvent.Str("timeout_source", timeoutSource)
	}
	if p.sanitizer.HasRules() {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("query executed")

	return finalResult
}

// isReadOnlyStatement returns true if the SQL is a read-only statement.
// Decides commit vs rollback only; a parse failure degrades to "treat as
// write", which is the safe side.
func isReadOnlyStatement(sql string) bool {
	result, err := pg_query.Parse(sql)
	if err != nil || len(result.Stmts) == 0 {
		return false
	}
	node := result.Stmts[0].Stmt
	switch node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return true
	case *pg_query.Node_ExplainStmt:
		return true
	case *pg_query.Node_VariableShowStmt:
		return true
	default:
		return false
	}
}

// runBeforeHooks runs BeforeQuery hooks in a middleware chain.
func (p *PgVeil) runBeforeHooks(ctx context.Context, sql string) (string, error) {
	for _, entry := range p.hooks {
		hookTimeout := entry.Timeout
		if hookTimeout == 0 {
			hookTimeout = time.Duration(p.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)

		modified, err := entry.Hook.Run(hookCtx, sql)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("before_query hook error: hook timed out (name: %s, timeout: %s)", entry.Name, hookTimeout)
			}
			return "", fmt.Errorf("before_query hook error: hook rejected query (name: %s): %w", entry.Name, err)
		}
		sql = modified
	}
	return sql, nil
}

// runAfterHooks runs AfterQuery hooks in a middleware chain.
func (p *PgVeil) runAfterHooks(ctx context.Context, result *QueryOutput) (*QueryOutput, error) {
	for _, entry := range p.afterHooks {
		hookTimeout := entry.Timeout
		if hookTimeout == 0 {
			hookTimeout = time.Duration(p.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)

		modified, err := entry.Hook.Run(hookCtx, result)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("after_query hook error: hook timed out (name: %s, timeout: %s)", entry.Name, hookTimeout)
			}
			return nil, fmt.Errorf("after_query hook error: hook rejected result (name: %s): %w", entry.Name, err)
		}
		result = modified
	}
	return result, nil
}

// collectRows reads all rows from pgx.Rows and returns a QueryOutput plus
// the field descriptors the masking layer needs.
func (p *PgVeil) collectRows(rows pgx.Rows) (*QueryOutput, []masking.Field, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	fields := make([]masking.Field, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
		fields[i] = masking.Field{Name: fd.Name, TypeOID: fd.DataTypeOID}
	}

	resultRows := make([]map[string]interface{}, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rowsAffected := rows.CommandTag().RowsAffected()

	return &QueryOutput{Columns: columns, Rows: resultRows, RowsAffected: rowsAffected}, fields, nil
}

// convertValue converts a pgx-returned value to a JSON-friendly Go type.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val), v)
	case float64:
		return convertFloat(val, v)
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		us := val.Microseconds
		hours := us / 3_600_000_000
		us -= hours * 3_600_000_000
		minutes := us / 60_000_000
		us -= minutes * 60_000_000
		seconds := us / 1_000_000
		us -= seconds * 1_000_000
		if us > 0 {
			return fmt.Sprintf("%02d:%02d:%02d.%06d", hours, minutes, seconds, us)
		}
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		var parts []string
		if val.Months != 0 {
			years := val.Months / 12
			months := val.Months % 12
			if years != 0 {
				parts = append(parts, fmt.Sprintf("%d year(s)", years))
			}
			if months != 0 {
				parts = append(parts, fmt.Sprintf("%d mon(s)", months))
			}
		}
		if val.Days != 0 {
			parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
		}
		if val.Microseconds != 0 {
			dur := time.Duration(val.Microseconds) * time.Microsecond
			parts = append(parts, dur.String())
		}
		if len(parts) == 0 {
			return "0"
		}
		return strings.Join(parts, " ")
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		if val.InfinityModifier == pgtype.Infinity {
			return "Infinity"
		}
		if val.InfinityModifier == pgtype.NegativeInfinity {
			return "-Infinity"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		// bytea, xml — base64 encode
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return val
	case map[string]interface{}:
		result := make(map[string]interface{}, len(val))
		for k, item := range val {
			result[k] = convertValue(item)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = convertValue(item)
		}
		return result
	default:
		return val
	}
}

// convertFloat maps non-finite floats to their string spellings; finite
// values keep their original (float32 or float64) type.
func convertFloat(f float64, orig interface{}) interface{} {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return orig
}

// handleError converts any error into a QueryOutput with error message.
// The message is evaluated against error_prompts — matching prompt
// messages are appended. Never used for access denials.
func (p *PgVeil) handleError(err error) *QueryOutput {
	errMsg := err.Error()
	prompt, patterns := p.errPrompts.Match(errMsg)

	logEvent := p.logger.Error().Err(err)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("query error")

	if prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	return &QueryOutput{Error: errMsg}
}

// truncateIfNeeded truncates query output rows if they exceed
// MaxResultLength (in characters).
func (p *PgVeil) truncateIfNeeded(output *QueryOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= p.config.Query.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	truncated := string(runes[:p.config.Query.MaxResultLength])
	output.Rows = nil
	output.Error = truncated + "...[truncated] Result is too long! Add limits in your query!"
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
