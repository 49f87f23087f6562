package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/core-sentiment/pageview-cli/internal/pipeline"
)

var (
	rankingsDate string
	rankingsJSON bool
)

var rankingsCmd = &cobra.Command{
	Use:   "rankings",
	Short: "Print company rankings for a processing date",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		date, err := parseDateFlag(rankingsDate)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rankings, err := st.CompanyRankings(ctx, date)
		if err != nil {
			return eris.Wrap(err, "company rankings")
		}

		if rankingsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rankings)
		}

		fmt.Println(pipeline.FormatRankings(rankings, date))
		return nil
	},
}

func init() {
	rankingsCmd.Flags().StringVar(&rankingsDate, "date", "", "processing date YYYY-MM-DD (default yesterday)")
	rankingsCmd.Flags().BoolVar(&rankingsJSON, "json", false, "emit JSON instead of a table")
	rootCmd.AddCommand(rankingsCmd)
}
