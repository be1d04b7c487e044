// Package query executes ad-hoc read-only queries against the active store
// behind a safety policy: SELECT-only, a mutation/DDL denylist, a restricted
// credentials table, and a default row cap.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/ledgerline/snapstore/internal/catalog"
)

// DefaultMaxRows caps result size when the statement has no LIMIT clause and
// the caller does not supply its own cap.
const DefaultMaxRows = 100

// restrictedTable holds user credentials and is never queryable through the
// ad-hoc path.
const restrictedTable = "USUARIOS"

// deniedKeywords are statement tokens that mutate data or schema. Matching is
// whole-word and case-insensitive.
var deniedKeywords = map[string]bool{
	"CREATE":  true,
	"ALTER":   true,
	"DROP":    true,
	"INSERT":  true,
	"UPDATE":  true,
	"DELETE":  true,
	"REPLACE": true,
	"ATTACH":  true,
	"DETACH":  true,
	"PRAGMA":  true,
	"VACUUM":  true,
}

// PolicyError is a structured rejection of a statement that violates the
// read-only policy. The statement is never executed.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return "query rejected: " + e.Reason
}

// Result is a fully-materialized query result.
type Result struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
	Count   int                      `json:"count"`
}

// Executor runs guarded queries against catalog sessions.
type Executor struct {
	catalog *catalog.Catalog
	maxRows int
	logger  *slog.Logger
}

// Option is a functional option for Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMaxRows sets the default row cap appended to uncapped statements.
func WithMaxRows(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// New creates an Executor over the given catalog.
func New(cat *catalog.Catalog, opts ...Option) *Executor {
	e := &Executor{
		catalog: cat,
		maxRows: DefaultMaxRows,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Guard applies the safety policy to a statement and returns the text that
// may be executed, with a LIMIT appended when the statement has none.
// A *PolicyError is returned for any violation.
func (e *Executor) Guard(text string, maxRows int) (string, error) {
	stmt := strings.TrimSpace(text)
	stmt = strings.TrimRight(stmt, ";")
	stmt = strings.TrimSpace(stmt)
	upper := strings.ToUpper(stmt)

	if stmt == "" {
		return "", &PolicyError{Reason: "empty statement"}
	}
	if !strings.HasPrefix(upper, "SELECT") {
		return "", &PolicyError{Reason: "only SELECT statements are allowed"}
	}

	hasLimit := false
	for _, tok := range tokenize(upper) {
		if deniedKeywords[tok] {
			return "", &PolicyError{Reason: fmt.Sprintf("forbidden keyword %q", tok)}
		}
		if tok == "LIMIT" {
			hasLimit = true
		}
	}

	if strings.Contains(upper, restrictedTable) {
		return "", &PolicyError{Reason: "access to table 'usuarios' is not allowed"}
	}

	if !hasLimit {
		if maxRows <= 0 {
			maxRows = e.maxRows
		}
		stmt = fmt.Sprintf("%s LIMIT %d", stmt, maxRows)
	}
	return stmt, nil
}

// tokenize splits a statement into identifier-like words, so keywords are
// caught even when glued to punctuation.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// Execute runs a guarded statement against a fresh session and returns the
// materialized result. maxRows <= 0 means the executor default.
func (e *Executor) Execute(ctx context.Context, text string, maxRows int) (*Result, error) {
	stmt, err := e.Guard(text, maxRows)
	if err != nil {
		return nil, err
	}

	sess, err := e.catalog.NewSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	rows, err := sess.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	result := &Result{Columns: columns, Rows: []map[string]interface{}{}}
	for rows.Next() {
		raw := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = normalizeCell(raw[i])
		}
		result.Rows = append(result.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read result rows: %w", err)
	}

	result.Count = len(result.Rows)
	e.logger.Debug("query executed", "columns", len(columns), "rows", result.Count)
	return result, nil
}

// normalizeCell converts driver byte slices to strings so results serialize
// cleanly to JSON.
func normalizeCell(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
