package cli

import (
	"github.com/spf13/cobra"

	"horde-monitor/internal/app"
)

var showOpts = app.ShowOptions{Limit: 20}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the latest archived samples",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), cmd.OutOrStdout(), showOpts)
	},
}

func init() {
	showCmd.Flags().IntVarP(&showOpts.Limit, "limit", "n", showOpts.Limit, "How many samples to print")
	showCmd.Flags().BoolVar(&showOpts.Oldest, "oldest-first", false, "Print in sampling order")
	showCmd.Flags().BoolVar(&showOpts.IDs, "ids", false, "Add a column with the active generation IDs")
}
