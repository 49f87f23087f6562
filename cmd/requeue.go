package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var requeueList bool

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Re-run LLM confirmation for excluded batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if requeueList {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			batches, err := st.ListExcludedBatches(ctx)
			if err != nil {
				return eris.Wrap(err, "list excluded batches")
			}
			if len(batches) == 0 {
				fmt.Println("No excluded batches")
				return nil
			}
			for _, b := range batches {
				fmt.Printf("%s  run=%s  records=%d  retries=%d  %s\n",
					b.ID, b.RunID, len(b.Records), b.RetryCount, b.Reason)
			}
			return nil
		}

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := p.Requeue(ctx)
		if err != nil {
			return eris.Wrap(err, "requeue")
		}

		fmt.Printf("Requeue done: %d confirmed, %d rejected, %d inserted, %d batches still excluded\n",
			report.Confirmed, report.Rejected, report.Inserted, report.ExcludedBatches)
		return nil
	},
}

func init() {
	requeueCmd.Flags().BoolVar(&requeueList, "list", false, "list excluded batches without reprocessing")
	rootCmd.AddCommand(requeueCmd)
}
