package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-halt [reason]",
	Short: "Halt a throwaway monitor with a fake fetch error and send the notification",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason := "simulated failure"
		if len(args) == 1 {
			reason = strings.TrimSpace(args[0])
		}
		if reason == "" {
			return fmt.Errorf("reason must not be blank")
		}
		return getApp().SimulateHalt(cmd.Context(), reason)
	},
}
