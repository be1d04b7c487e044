// Package catalog reflects the schema of the active store and hands out
// read sessions pinned to a consistent view of it.
//
// The current schema is an immutable snapshot behind an atomic pointer.
// Refresh publishes a whole new snapshot in one store; sessions opened before
// a refresh keep their prior snapshot (and its database handle) until closed,
// so no reader ever observes a mix of old and new mappings.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ledgerline/snapstore/internal/translate"
)

// ErrNotInitialized is returned while no store exists yet. This is the
// expected state between process start and the first successful ingestion.
var ErrNotInitialized = errors.New("store not initialized: waiting for first successful ingestion")

// Connections allow many concurrent readers; WAL plus a busy timeout keeps
// them from failing fast on transient lock contention.
const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000"

// TableInfo describes one reflected table.
type TableInfo struct {
	Name    string
	Columns []string
}

// snapshot is an immutable view of the store: one database handle plus the
// table mapping reflected from it. It is reference counted; the handle is
// closed when the catalog has moved on and the last session releases it.
type snapshot struct {
	db     *sql.DB
	names  []string
	tables map[string]*TableInfo
	refs   atomic.Int64
}

func (s *snapshot) acquire() { s.refs.Add(1) }

func (s *snapshot) release() {
	if s.refs.Add(-1) == 0 {
		_ = s.db.Close()
	}
}

// Catalog owns the current schema snapshot for the active store.
type Catalog struct {
	dbPath  string
	logger  *slog.Logger
	current atomic.Pointer[snapshot]
}

// Option is a functional option for Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// New creates a Catalog for the store at dbPath. No snapshot exists until
// the first successful Refresh.
func New(dbPath string, opts ...Option) *Catalog {
	c := &Catalog{
		dbPath: dbPath,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh re-opens the active store, reflects its tables and columns, and
// publishes the result as the new current snapshot. In-flight sessions keep
// their prior snapshot.
func (c *Catalog) Refresh() error {
	if _, err := os.Stat(c.dbPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNotInitialized
		}
		return fmt.Errorf("stat store: %w", err)
	}

	db, err := sql.Open("sqlite3", c.dbPath+defaultSQLiteParams)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping store: %w", err)
	}

	names, tables, err := reflectTables(db)
	if err != nil {
		_ = db.Close()
		return err
	}

	next := &snapshot{db: db, names: names, tables: tables}
	next.refs.Store(1) // catalog's own reference

	prev := c.current.Swap(next)
	if prev != nil {
		prev.release()
	}

	c.logger.Info("schema refreshed", "tables", len(names))
	return nil
}

// reflectTables enumerates user tables and their column sets from the
// store's own metadata.
func reflectTables(db *sql.DB) ([]string, map[string]*TableInfo, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, nil, fmt.Errorf("enumerate tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("enumerate tables: %w", err)
	}

	tables := make(map[string]*TableInfo, len(names))
	for _, name := range names {
		cols, err := tableColumns(db, name)
		if err != nil {
			return nil, nil, err
		}
		tables[name] = &TableInfo{Name: name, Columns: cols}
	}
	return names, tables, nil
}

func tableColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", translate.QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table_info %q: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info %q: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// ListTables returns the names of all reflected tables.
func (c *Catalog) ListTables() ([]string, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrNotInitialized
	}
	names := make([]string, len(snap.names))
	copy(names, snap.names)
	return names, nil
}

// Table returns info for one reflected table, or nil when it does not exist.
func (c *Catalog) Table(name string) (*TableInfo, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrNotInitialized
	}
	return snap.tables[name], nil
}

// Initialized reports whether a snapshot has been published.
func (c *Catalog) Initialized() bool {
	return c.current.Load() != nil
}

// NewSession returns a read session pinned to the current snapshot. The
// caller must Close it.
func (c *Catalog) NewSession() (*Session, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrNotInitialized
	}
	snap.acquire()
	return &Session{snap: snap}, nil
}

// Close releases the catalog's reference to the current snapshot.
func (c *Catalog) Close() error {
	prev := c.current.Swap(nil)
	if prev != nil {
		prev.release()
	}
	return nil
}

// Session is a short-lived read scope over one schema snapshot.
type Session struct {
	snap   *snapshot
	closed bool
}

// Tables returns the table names visible to this session.
func (s *Session) Tables() []string {
	names := make([]string, len(s.snap.names))
	copy(names, s.snap.names)
	return names
}

// Table returns info for one table in this session's view, or nil.
func (s *Session) Table(name string) *TableInfo {
	return s.snap.tables[name]
}

// QueryContext runs a read query against the session's store.
func (s *Session) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.snap.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row read query against the session's store.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.snap.db.QueryRowContext(ctx, query, args...)
}

// Close releases the session's snapshot reference. Safe to call once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.snap.release()
	return nil
}
