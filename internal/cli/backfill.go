package cli

import (
	"github.com/spf13/cobra"

	"horde-monitor/internal/app"
)

var backfillOpts app.BackfillOptions

// backfill re-imports files produced by a window export, so samples taken
// while the archive was down are not lost.
var backfillCmd = &cobra.Command{
	Use:     "backfill <export.csv>...",
	Aliases: []string{"import"},
	Short:   "Load window CSV exports into the archive",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, paths []string) error {
		opts := backfillOpts
		opts.Paths = paths
		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillOpts.DryRun, "dry-run", false, "Validate the files and report row counts only")
}
