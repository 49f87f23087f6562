package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the classified snapshot with current overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := p.Refresh(ctx)
		if err != nil {
			return eris.Wrap(err, "refresh snapshot")
		}

		fmt.Printf("Snapshot rebuilt: %d rows\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
