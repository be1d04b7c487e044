package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [document]",
	Short: "Rebuild the store from a local export document",
	Long: `Rebuilds the SQLite store from an export document on disk without
contacting the mailbox. With no argument the last downloaded document is
used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	docPath := cfg.DocumentPath()
	if len(args) == 1 {
		docPath = args[0]
	}

	a := newApp(cfg)
	defer a.Close()

	processed, err := a.pipeline.RunLocal(docPath)
	if err != nil {
		return err
	}
	if !processed {
		return fmt.Errorf("rebuild already in progress")
	}

	tables, err := a.catalog.ListTables()
	if err != nil {
		return err
	}
	fmt.Printf("store rebuilt: %d tables\n", len(tables))
	return nil
}
