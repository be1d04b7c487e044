// Package rebuild constructs a fresh SQLite store from a SNAP export
// document and swaps it in for the active store in one atomic rename.
package rebuild

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ledgerline/snapstore/internal/export"
	"github.com/ledgerline/snapstore/internal/translate"
)

// Orchestrator rebuilds the active store from export documents. At most one
// rebuild runs at a time: a concurrent call is rejected, never queued.
type Orchestrator struct {
	activePath string
	logger     *slog.Logger

	mu sync.Mutex // guards the rebuild; acquired with TryLock only
}

// Option is a functional option for Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an Orchestrator that maintains the store at activePath.
func New(activePath string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		activePath: activePath,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// stagingPath returns the path of the store under construction. It lives in
// the same directory as the active store so the final rename stays on one
// filesystem.
func (o *Orchestrator) stagingPath() string {
	return o.activePath + ".staging"
}

// Rebuild builds a new store from the document at docPath and swaps it in.
// It returns false without doing any work when another rebuild is already in
// flight. On any error the staging file is removed and the active store is
// left untouched.
func (o *Orchestrator) Rebuild(docPath string) (bool, error) {
	if !o.mu.TryLock() {
		o.logger.Warn("rebuild already in progress, skipping")
		return false, nil
	}
	defer o.mu.Unlock()

	env, err := export.DecodeFile(docPath)
	if err != nil {
		return false, err
	}

	rep := translate.Validate(env)
	for _, w := range rep.Warnings {
		o.logger.Warn("export consistency warning", "detail", w)
	}
	if err := rep.Err(); err != nil {
		return false, err
	}

	staging := o.stagingPath()
	if err := os.MkdirAll(filepath.Dir(o.activePath), 0755); err != nil {
		return false, fmt.Errorf("create store directory: %w", err)
	}
	// A stale staging file means a previous rebuild died before cleanup.
	if err := os.Remove(staging); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove stale staging store: %w", err)
	}

	o.logger.Info("rebuild started",
		"document", filepath.Base(docPath),
		"tables", len(env.Tables),
		"exported_at", env.ExportedAt)

	if err := o.build(staging, env); err != nil {
		if rmErr := os.Remove(staging); rmErr != nil && !os.IsNotExist(rmErr) {
			o.logger.Error("failed to clean up staging store", "path", staging, "error", rmErr)
		}
		return false, err
	}

	// Atomic visibility boundary: the active path only ever holds a
	// fully-built store. Readers on the old file keep their handles; the
	// old inode is unlinked, not overwritten.
	if err := os.Remove(o.activePath); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(staging)
		return false, fmt.Errorf("remove previous store: %w", err)
	}
	if err := os.Rename(staging, o.activePath); err != nil {
		_ = os.Remove(staging)
		return false, fmt.Errorf("swap in new store: %w", err)
	}

	if info, err := os.Stat(o.activePath); err == nil {
		o.logger.Info("rebuild completed", "size_bytes", info.Size())
	}
	return true, nil
}

// build creates every table and loads its rows into the store at path.
func (o *Orchestrator) build(path string, env *export.Envelope) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open staging store: %w", err)
	}
	defer db.Close()

	for _, t := range env.Tables {
		ddl, err := translate.BuildTableDef(t.Name, t.Structure)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create table %q: %w", t.Name, err)
		}

		if err := o.insertRows(db, t); err != nil {
			return fmt.Errorf("insert rows into %q: %w", t.Name, err)
		}
		o.logger.Debug("table built", "table", t.Name, "columns", len(t.Structure), "rows", len(t.Rows))
	}
	return nil
}

// insertRows bulk-loads one table's rows inside a single transaction, so a
// row-level failure rolls the whole table back.
func (o *Orchestrator) insertRows(db *sql.DB, t export.Table) error {
	if len(t.Rows) == 0 {
		return nil
	}

	// The first row's field order decides the insert column order, matching
	// the export's own serialization.
	columns := t.Rows[0].Names()
	if len(columns) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = translate.QuoteIdent(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		translate.QuoteIdent(t.Name), strings.Join(quoted, ", "))

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := insertInChunks(tx, len(t.Rows), len(columns), prefix, func(start, end int) ([]string, []interface{}) {
		tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*len(columns))
		for i := start; i < end; i++ {
			values = append(values, tuple)
			for _, col := range columns {
				v, ok := t.Rows[i].Get(col)
				args = append(args, NormalizeValue(v, ok))
			}
		}
		return values, args
	}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// insertInChunks executes a multi-value INSERT in chunks to stay within
// SQLite's parameter limit (999). valuesPerRow is the number of parameters in
// each VALUES tuple; valueBuilder generates the placeholders and args for a
// chunk of row indices.
func insertInChunks(tx *sql.Tx, totalRows int, valuesPerRow int, queryPrefix string, valueBuilder func(start, end int) ([]string, []interface{})) error {
	const maxParams = 900
	chunkSize := maxParams / valuesPerRow
	if chunkSize < 1 {
		chunkSize = 1
	}

	for i := 0; i < totalRows; i += chunkSize {
		end := i + chunkSize
		if end > totalRows {
			end = totalRows
		}

		values, args := valueBuilder(i, end)
		query := queryPrefix + strings.Join(values, ",")
		if _, err := tx.Exec(query, args...); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeValue maps a loosely-typed export cell to its SQLite parameter.
// Absent fields, JSON null, the empty string, and the literal string "NULL"
// in any case all store as NULL; booleans store as 1/0; numbers keep integer
// precision where the literal allows it.
func NormalizeValue(v export.Value, present bool) interface{} {
	if !present {
		return nil
	}
	switch v.Kind {
	case export.KindNull:
		return nil
	case export.KindBool:
		if v.Bool {
			return int64(1)
		}
		return int64(0)
	case export.KindNumber:
		if i, err := v.Num.Int64(); err == nil {
			return i
		}
		if f, err := v.Num.Float64(); err == nil {
			return f
		}
		return v.Num.String()
	case export.KindString:
		if v.Str == "" || strings.EqualFold(v.Str, "NULL") {
			return nil
		}
		return v.Str
	default:
		return v.Raw
	}
}
