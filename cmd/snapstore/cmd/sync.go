package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the latest export and rebuild the store",
	Long: `Checks the configured mailbox for a newer export than the last one
processed. When one is found it is downloaded, decompressed, and the store
is rebuilt from it. Does nothing when no new export is available.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a := newApp(cfg)
	defer a.Close()

	processed, err := a.pipeline.Run(cmd.Context())
	if err != nil {
		return err
	}
	if processed {
		fmt.Println("store rebuilt from new export")
	} else {
		fmt.Println("no new export to process")
	}
	return nil
}
