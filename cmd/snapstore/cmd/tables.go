package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ledgerline/snapstore/internal/catalog"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables in the current store",
	RunE:  runTables,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, args []string) error {
	a := newApp(cfg)
	defer a.Close()

	if err := a.catalog.Refresh(); err != nil {
		if errors.Is(err, catalog.ErrNotInitialized) {
			return fmt.Errorf("store not initialized; run 'snapstore sync' first")
		}
		return err
	}

	names, err := a.catalog.ListTables()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tCOLUMNS")
	for _, name := range names {
		info, err := a.catalog.Table(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", name, len(info.Columns))
	}
	return w.Flush()
}
