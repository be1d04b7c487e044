package cmd

import (
	"github.com/ledgerline/snapstore/internal/catalog"
	"github.com/ledgerline/snapstore/internal/config"
	"github.com/ledgerline/snapstore/internal/mailbox"
	"github.com/ledgerline/snapstore/internal/pipeline"
	"github.com/ledgerline/snapstore/internal/rebuild"
)

// app bundles the components shared across subcommands. Building it does
// not touch the network or the store file; the catalog is refreshed lazily
// by the caller.
type app struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	orch     *rebuild.Orchestrator
	client   *mailbox.Client
	cursor   *mailbox.Cursor
	pipeline *pipeline.Pipeline
}

func newApp(cfg *config.Config) *app {
	cat := catalog.New(cfg.DatabasePath(), catalog.WithLogger(logger))
	orch := rebuild.New(cfg.DatabasePath(), rebuild.WithLogger(logger))
	client := mailbox.NewClient(&cfg.Mail, cfg.DocumentPath(), mailbox.WithLogger(logger))
	cursor := mailbox.NewCursor(cfg.CursorPath())

	pl := pipeline.New(client, cursor, orch, cat,
		cfg.DocumentPath(), cfg.DatabasePath(),
		pipeline.WithLogger(logger))

	return &app{
		cfg:      cfg,
		catalog:  cat,
		orch:     orch,
		client:   client,
		cursor:   cursor,
		pipeline: pl,
	}
}

func (a *app) Close() {
	a.catalog.Close()
}
