// Package masking hides and redacts configured data before it reaches the
// caller: sensitive field values are replaced with a fixed redaction
// marker, hidden columns are dropped from result rows, and hidden tables
// are removed from table listings and schema metadata.
//
// All matching is case-insensitive; set members are stored lower-cased.
// A Policy is immutable after construction and masking functions never
// mutate their inputs, so everything here is safe for concurrent use.
package masking

import "strings"

// Redacted is the literal marker substituted for sensitive field values.
const Redacted = "***"

// defaultSensitiveFields is the built-in list of field names whose values
// are redacted. Configured extras are unioned in at construction.
var defaultSensitiveFields = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"access_token",
	"refresh_token",
	"private_key",
	"credit_card",
	"card_number",
	"cvv",
	"ssn",
	"auth",
	"credential",
	"session_id",
}

// Config is the masking policy's own config type.
type Config struct {
	Enabled         bool
	HiddenTables    []string
	HiddenColumns   []string
	SensitiveFields []string // extras, unioned with the built-in defaults
}

// Policy is the normalized masking policy: lower-cased hash sets for O(1)
// case-insensitive membership checks.
type Policy struct {
	enabled         bool
	hiddenTables    map[string]struct{}
	hiddenColumns   map[string]struct{}
	sensitiveFields map[string]struct{}
}

// NewPolicy builds an immutable Policy from the given config.
func NewPolicy(config Config) *Policy {
	p := &Policy{
		enabled:         config.Enabled,
		hiddenTables:    toSet(config.HiddenTables),
		hiddenColumns:   toSet(config.HiddenColumns),
		sensitiveFields: toSet(defaultSensitiveFields),
	}
	for _, f := range config.SensitiveFields {
		p.sensitiveFields[normalize(f)] = struct{}{}
	}
	return p
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[normalize(n)] = struct{}{}
	}
	return set
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Enabled reports whether masking is active.
func (p *Policy) Enabled() bool {
	return p.enabled
}

// TableHidden reports whether the given table is hidden by policy.
// Always false when masking is disabled.
func (p *Policy) TableHidden(table string) bool {
	if !p.enabled {
		return false
	}
	_, ok := p.hiddenTables[normalize(table)]
	return ok
}

// ColumnHidden reports whether the given column is hidden by policy.
func (p *Policy) ColumnHidden(column string) bool {
	if !p.enabled {
		return false
	}
	_, ok := p.hiddenColumns[normalize(column)]
	return ok
}

// Sensitive reports whether the given field name is flagged for value
// redaction.
func (p *Policy) Sensitive(field string) bool {
	if !p.enabled {
		return false
	}
	_, ok := p.sensitiveFields[normalize(field)]
	return ok
}

// Field describes one result column.
type Field struct {
	Name    string
	TypeOID uint32
}

// MaskRows drops hidden columns from rows and fields and redacts
// sensitive values. When masking is disabled, rows is empty, or no field
// is hidden, sensitive, or malformed, the original slices are returned
// unchanged (same references). Otherwise brand-new rows and fields are
// built; the inputs are never mutated. Output field order matches input
// order restricted to visible fields. Nil values are never redacted.
// Fields with an empty name are skipped rather than failing the result.
func (p *Policy) MaskRows(rows []map[string]interface{}, fields []Field) ([]map[string]interface{}, []Field) {
	if !p.enabled || len(rows) == 0 {
		return rows, fields
	}

	visible := make([]Field, 0, len(fields))
	sensitive := make(map[string]struct{})
	touched := false
	for _, f := range fields {
		if f.Name == "" {
			touched = true
			continue
		}
		if p.ColumnHidden(f.Name) {
			touched = true
			continue
		}
		visible = append(visible, f)
		if p.Sensitive(f.Name) {
			sensitive[f.Name] = struct{}{}
			touched = true
		}
	}
	if !touched {
		return rows, fields
	}

	masked := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		out := make(map[string]interface{}, len(visible))
		for _, f := range visible {
			v, ok := row[f.Name]
			if !ok {
				continue
			}
			if _, isSensitive := sensitive[f.Name]; isSensitive && v != nil {
				out[f.Name] = Redacted
			} else {
				out[f.Name] = v
			}
		}
		masked[i] = out
	}
	return masked, visible
}

// FilterTables returns the sub-sequence of entries whose table name is not
// hidden, preserving order. When masking is disabled, no tables are
// hidden, or nothing matches, the input slice is returned unchanged.
func FilterTables[T any](p *Policy, entries []T, tableName func(T) string) []T {
	if !p.enabled || len(p.hiddenTables) == 0 || len(entries) == 0 {
		return entries
	}
	hidden := 0
	for _, e := range entries {
		if p.TableHidden(tableName(e)) {
			hidden++
		}
	}
	if hidden == 0 {
		return entries
	}
	filtered := make([]T, 0, len(entries)-hidden)
	for _, e := range entries {
		if !p.TableHidden(tableName(e)) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// FilterSchema filters whole-database column metadata, dropping rows whose
// table is hidden or whose column is hidden. Order is preserved; the input
// is returned unchanged when nothing matches.
func FilterSchema[T any](p *Policy, rows []T, table func(T) string, column func(T) string) []T {
	if !p.enabled || len(rows) == 0 {
		return rows
	}
	drop := 0
	for _, r := range rows {
		if p.TableHidden(table(r)) || p.ColumnHidden(column(r)) {
			drop++
		}
	}
	if drop == 0 {
		return rows
	}
	filtered := make([]T, 0, len(rows)-drop)
	for _, r := range rows {
		if !p.TableHidden(table(r)) && !p.ColumnHidden(column(r)) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// FilterColumns filters a single table's column list, dropping hidden
// columns. A possibly-empty result is legitimate; callers must check
// Policy.TableHidden first to distinguish a hidden table from a table
// with no visible columns.
func FilterColumns[T any](p *Policy, cols []T, name func(T) string) []T {
	if !p.enabled || len(p.hiddenColumns) == 0 || len(cols) == 0 {
		return cols
	}
	drop := 0
	for _, c := range cols {
		if p.ColumnHidden(name(c)) {
			drop++
		}
	}
	if drop == 0 {
		return cols
	}
	filtered := make([]T, 0, len(cols)-drop)
	for _, c := range cols {
		if !p.ColumnHidden(name(c)) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
