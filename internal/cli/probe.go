package cli

import (
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Fetch the account once and print the normalized sample",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Probe(cmd.Context(), cmd.OutOrStdout())
	},
}
