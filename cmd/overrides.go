package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/core-sentiment/pageview-cli/internal/model"
)

var (
	overrideReason string
	overrideBy     string
)

var overridesCmd = &cobra.Command{
	Use:   "overrides",
	Short: "List manual classification overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		overrides, err := st.ListOverrides(ctx)
		if err != nil {
			return eris.Wrap(err, "list overrides")
		}
		if len(overrides) == 0 {
			fmt.Println("No overrides configured")
			return nil
		}

		for _, o := range overrides {
			line := fmt.Sprintf("%s -> %s", o.PageTitle, o.CorrectCompany)
			if o.Reason != "" {
				line += fmt.Sprintf(" (%s)", o.Reason)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var overridesSetCmd = &cobra.Command{
	Use:   "set <page_title> <company>",
	Short: "Assert the correct company for a page title",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		company, ok := model.ParseCompany(args[1])
		if !ok {
			return eris.Errorf("unknown company %q", args[1])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		err = st.PutOverride(ctx, model.Override{
			PageTitle:      args[0],
			CorrectCompany: company,
			Reason:         overrideReason,
			CreatedBy:      overrideBy,
		})
		if err != nil {
			return eris.Wrap(err, "set override")
		}

		fmt.Printf("Override set: %s -> %s\n", args[0], company)
		fmt.Println("Run 'pageview-cli refresh' to apply it to the snapshot")
		return nil
	},
}

var overridesRmCmd = &cobra.Command{
	Use:   "rm <page_title>",
	Short: "Remove an override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteOverride(ctx, args[0]); err != nil {
			return eris.Wrap(err, "remove override")
		}

		fmt.Printf("Override removed: %s\n", args[0])
		return nil
	},
}

func init() {
	overridesSetCmd.Flags().StringVar(&overrideReason, "reason", "", "why the override is needed")
	overridesSetCmd.Flags().StringVar(&overrideBy, "by", "", "who asserted it")
	overridesCmd.AddCommand(overridesSetCmd)
	overridesCmd.AddCommand(overridesRmCmd)
	rootCmd.AddCommand(overridesCmd)
}
