package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"horde-monitor/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build and the Client-Agent sent to the Horde",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 1, ' ', 0)
		for _, kv := range [][2]string{
			{"version", version.Version},
			{"commit", version.Commit},
			{"built", version.BuildDate},
			{"client-agent", version.ClientAgent()},
		} {
			fmt.Fprintf(tw, "%s:\t%s\n", kv[0], kv[1])
		}
		return tw.Flush()
	},
}
