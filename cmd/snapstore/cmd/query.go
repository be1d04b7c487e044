package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ledgerline/snapstore/internal/catalog"
	"github.com/ledgerline/snapstore/internal/query"
)

var queryMaxRows int

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a read-only SELECT against the store",
	Long: `Executes a single SELECT statement against the current store. Statements
other than SELECT are rejected, and a row cap is applied when the statement
has no LIMIT of its own.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryMaxRows, "max-rows", 0, "row cap (default from config)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	a := newApp(cfg)
	defer a.Close()

	if err := a.catalog.Refresh(); err != nil {
		if errors.Is(err, catalog.ErrNotInitialized) {
			return fmt.Errorf("store not initialized; run 'snapstore sync' first")
		}
		return err
	}

	maxRows := cfg.Query.MaxRows
	if queryMaxRows > 0 {
		maxRows = queryMaxRows
	}
	exec := query.New(a.catalog, query.WithMaxRows(maxRows), query.WithLogger(logger))

	text := strings.Join(args, " ")
	result, err := exec.Execute(cmd.Context(), text, 0)
	if err != nil {
		var perr *query.PolicyError
		if errors.As(err, &perr) {
			return fmt.Errorf("query rejected: %s", perr.Reason)
		}
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = formatCell(row[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("(%d rows)\n", result.Count)
	return nil
}

func formatCell(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
