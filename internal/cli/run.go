package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the monitor and its control API; stop with SIGINT or SIGTERM",
	Long: "run polls the configured account at monitor.interval when monitor.auto_start is set, " +
		"archives samples when database.dsn is set and serves the HTTP API on server.addr. " +
		"Edits to the config file are applied without a restart.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}
