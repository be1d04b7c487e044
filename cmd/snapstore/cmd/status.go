package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgerline/snapstore/internal/catalog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and ingestion status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a := newApp(cfg)
	defer a.Close()

	fmt.Printf("Home:      %s\n", cfg.HomeDir)
	fmt.Printf("Store:     %s\n", cfg.DatabasePath())
	fmt.Printf("Document:  %s\n", cfg.DocumentPath())
	fmt.Printf("Mailbox:   %s (subject %q)\n", cfg.Mail.Addr(), a.client.DescribeSubject())
	fmt.Printf("Interval:  %s\n", cfg.SyncInterval())

	cur, err := a.cursor.Load()
	if err != nil {
		logger.Warn("could not read sync cursor", "error", err)
	}
	if cur == "" {
		fmt.Println("Cursor:    none (no export processed yet)")
	} else {
		fmt.Printf("Cursor:    uid %s\n", cur)
	}

	err = a.catalog.Refresh()
	switch {
	case errors.Is(err, catalog.ErrNotInitialized):
		fmt.Println("State:     not initialized")
		return nil
	case err != nil:
		return err
	}

	names, err := a.catalog.ListTables()
	if err != nil {
		return err
	}
	fmt.Printf("State:     initialized, %d tables\n", len(names))

	info, err := os.Stat(cfg.DatabasePath())
	if err == nil {
		fmt.Printf("Built:     %s (%d bytes)\n",
			info.ModTime().Format("2006-01-02 15:04:05"), info.Size())
	}
	return nil
}
