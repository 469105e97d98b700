// Package classify extracts the leading SQL command keyword from raw
// statement text. It is a lexical gate: comments are stripped, the first
// token is matched against a closed vocabulary, and anything else maps to
// UNKNOWN. It does not validate the statement and does not look past the
// first keyword.
package classify

import (
	"regexp"
	"strings"
)

// Command is a single SQL command keyword from the closed vocabulary,
// or Unknown for anything unrecognized.
type Command string

const (
	Select   Command = "SELECT"
	Insert   Command = "INSERT"
	Update   Command = "UPDATE"
	Delete   Command = "DELETE"
	Create   Command = "CREATE"
	Drop     Command = "DROP"
	Alter    Command = "ALTER"
	Truncate Command = "TRUNCATE"
	Grant    Command = "GRANT"
	Revoke   Command = "REVOKE"
	Begin    Command = "BEGIN"
	Commit   Command = "COMMIT"
	Rollback Command = "ROLLBACK"
	Explain  Command = "EXPLAIN"
	Analyze  Command = "ANALYZE"
	Vacuum   Command = "VACUUM"
	Copy     Command = "COPY"
	Unknown  Command = "UNKNOWN"
)

// vocabulary is the set of recognized leading keywords.
var vocabulary = map[Command]struct{}{
	Select: {}, Insert: {}, Update: {}, Delete: {},
	Create: {}, Drop: {}, Alter: {}, Truncate: {},
	Grant: {}, Revoke: {}, Begin: {}, Commit: {}, Rollback: {},
	Explain: {}, Analyze: {}, Vacuum: {}, Copy: {},
}

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Parse returns the Command matching the given token (case-insensitive),
// or Unknown. The literal token "UNKNOWN" parses to Unknown as well, which
// lets custom allow-lists whitelist it explicitly.
func Parse(token string) Command {
	c := Command(strings.ToUpper(strings.TrimSpace(token)))
	if _, ok := vocabulary[c]; ok {
		return c
	}
	return Unknown
}

// Classify returns the Command for the given SQL text. Line comments
// (-- to end of line) and block comments (/* ... */, non-greedy, possibly
// spanning lines) are removed before the first whitespace-delimited token
// is extracted. Empty or whitespace-only input classifies to Unknown.
func Classify(sql string) Command {
	stripped := blockCommentRe.ReplaceAllString(sql, " ")
	stripped = lineCommentRe.ReplaceAllString(stripped, " ")
	fields := strings.Fields(stripped)
	if len(fields) == 0 {
		return Unknown
	}
	return Parse(fields[0])
}
