// Package pipeline wires the ingestion stages together: acquire the newest
// export, rebuild the store from it, refresh the reflected schema, and only
// then commit the sync cursor.
package pipeline

import (
	"context"
	"log/slog"
	"os"

	"github.com/ledgerline/snapstore/internal/catalog"
	"github.com/ledgerline/snapstore/internal/mailbox"
	"github.com/ledgerline/snapstore/internal/rebuild"
)

// Acquirer fetches the newest export document. A (nil, nil) result means
// nothing new is available.
type Acquirer interface {
	FetchLatest(ctx context.Context, cursor string) (*mailbox.Fetched, error)
}

// Pipeline runs one ingestion cycle end to end.
type Pipeline struct {
	acquirer  Acquirer
	cursor    *mailbox.Cursor
	orch      *rebuild.Orchestrator
	catalog   *catalog.Catalog
	docPath   string
	storePath string
	logger    *slog.Logger
}

// Option is a functional option for Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New assembles a Pipeline. docPath is the canonical document location and
// storePath the active store file.
func New(acq Acquirer, cursor *mailbox.Cursor, orch *rebuild.Orchestrator, cat *catalog.Catalog, docPath, storePath string, opts ...Option) *Pipeline {
	p := &Pipeline{
		acquirer:  acq,
		cursor:    cursor,
		orch:      orch,
		catalog:   cat,
		docPath:   docPath,
		storePath: storePath,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one cycle. It returns true when a rebuild was performed and
// the new store published. Acquisition failures never propagate; rebuild
// failures do, with the active store untouched and the cursor unchanged so
// the same export is retried next cycle.
func (p *Pipeline) Run(ctx context.Context) (bool, error) {
	p.logger.Info("ingestion cycle started")

	cur, err := p.cursor.Load()
	if err != nil {
		p.logger.Warn("could not load sync cursor, treating mailbox as fresh", "error", err)
		cur = ""
	}

	fetched, err := p.acquirer.FetchLatest(ctx, cur)
	if err != nil {
		return false, err
	}

	docPath := p.docPath
	if fetched == nil {
		p.logger.Info("no new export available")
		if _, err := os.Stat(docPath); err != nil {
			p.logger.Info("no export document on disk, nothing to do")
			return false, nil
		}
		if _, err := os.Stat(p.storePath); err == nil {
			p.logger.Info("store already built from current document, skipping rebuild")
			return false, nil
		}
		// First run after a restart: a document exists but no store does.
		p.logger.Info("store missing, rebuilding from existing document")
	} else {
		docPath = fetched.Path
	}

	done, err := p.orch.Rebuild(docPath)
	if err != nil {
		return false, err
	}
	if !done {
		return false, nil
	}

	if err := p.catalog.Refresh(); err != nil {
		return false, err
	}

	// Cursor advances only after the export is durably applied, so a rebuild
	// failure retries the same export instead of silently skipping it.
	if fetched != nil {
		if err := p.cursor.Commit(fetched.UID); err != nil {
			p.logger.Error("failed to persist sync cursor", "uid", fetched.UID, "error", err)
		}
	}

	p.logger.Info("ingestion cycle completed")
	return true, nil
}

// RunLocal rebuilds from an already-downloaded document and refreshes the
// schema, bypassing acquisition. Used by the rebuild command and initial
// setup.
func (p *Pipeline) RunLocal(docPath string) (bool, error) {
	done, err := p.orch.Rebuild(docPath)
	if err != nil {
		return false, err
	}
	if !done {
		return false, nil
	}
	return true, p.catalog.Refresh()
}
