package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/core-sentiment/pageview-cli/internal/ingest"
)

var (
	ingestDate  string
	ingestInput string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Bulk-load a raw pageview CSV into the warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		date, err := parseDateFlag(ingestDate)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		ing := ingest.New(st, cfg.Ingest)
		stats, err := ing.IngestFile(ctx, ingestInput, date)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		fmt.Printf("Loaded %d rows (%d malformed skipped)\n", stats.Loaded, stats.Malformed)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDate, "date", "", "processing date YYYY-MM-DD (default yesterday)")
	ingestCmd.Flags().StringVar(&ingestInput, "input", "", "CSV file to load (required)")
	ingestCmd.MarkFlagRequired("input") //nolint:errcheck
	rootCmd.AddCommand(ingestCmd)
}
