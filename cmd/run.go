package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/core-sentiment/pageview-cli/internal/ingest"
	"github.com/core-sentiment/pageview-cli/internal/model"
	"github.com/core-sentiment/pageview-cli/internal/pipeline"
)

var (
	runDate  string
	runInput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the classification pipeline for one processing date",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		date, err := parseDateFlag(runDate)
		if err != nil {
			return err
		}

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		// With --input the file is the source of truth; otherwise the raw
		// warehouse is read for the date.
		var records []model.RawRecord
		if runInput != "" {
			var stats *ingest.Stats
			records, stats, err = ingest.ReadAll(runInput, date)
			if err != nil {
				return err
			}
			zap.L().Info("input file parsed",
				zap.String("file", runInput),
				zap.Int64("rows", stats.Loaded),
				zap.Int("malformed", stats.Malformed),
			)
		}

		run, err := p.Run(ctx, date, records)
		if err != nil {
			return eris.Wrap(err, "run pipeline")
		}

		fmt.Println(pipeline.FormatReport(run, date))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "processing date YYYY-MM-DD (default yesterday)")
	runCmd.Flags().StringVar(&runInput, "input", "", "CSV of raw pageview rows (default: read the warehouse)")
	rootCmd.AddCommand(runCmd)
}
