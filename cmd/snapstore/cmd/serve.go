package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerline/snapstore/internal/analytics"
	"github.com/ledgerline/snapstore/internal/api"
	"github.com/ledgerline/snapstore/internal/catalog"
	"github.com/ledgerline/snapstore/internal/query"
	"github.com/ledgerline/snapstore/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion scheduler and HTTP API",
	Long: `Runs snapstore as a long-lived service: a background scheduler polls the
configured mailbox for new exports and rebuilds the store, while an HTTP API
serves read-only queries and analytics over the current store.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a := newApp(cfg)
	defer a.Close()

	// If an export document survives from a previous run but the store is
	// missing, rebuild before serving so the API starts initialized.
	if _, err := os.Stat(cfg.DatabasePath()); os.IsNotExist(err) {
		if _, err := os.Stat(cfg.DocumentPath()); err == nil {
			logger.Info("store missing, rebuilding from existing document",
				"document", cfg.DocumentPath())
			if _, err := a.pipeline.RunLocal(cfg.DocumentPath()); err != nil {
				logger.Warn("initial rebuild failed", "error", err)
			}
		}
	}

	if err := a.catalog.Refresh(); err != nil {
		if errors.Is(err, catalog.ErrNotInitialized) {
			logger.Info("store not initialized, waiting for first export")
		} else {
			logger.Warn("catalog refresh failed", "error", err)
		}
	}

	sched, err := scheduler.New(a.pipeline.Run, cfg.SyncInterval(), scheduler.WithLogger(logger))
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	exec := query.New(a.catalog, query.WithMaxRows(cfg.Query.MaxRows), query.WithLogger(logger))
	an := analytics.New(a.catalog, analytics.WithLogger(logger))
	server := api.NewServer(cfg, a.catalog, exec, an, sched, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}

	stopped := sched.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("scheduler did not stop in time")
	}
	return nil
}
