package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"horde-monitor/internal/horde"
)

var generationCmd = &cobra.Command{
	Use:   "generation",
	Short: "Inspect or cancel a single generation",
}

var generationShowCmd = &cobra.Command{
	Use:   "show <image|text> <id>",
	Short: "Print the status of a generation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := horde.ParseGenerationType(args[0])
		if err != nil {
			return err
		}
		return getApp().GenerationShow(cmd.Context(), cmd.OutOrStdout(), kind, args[1])
	},
}

var generationCancelCmd = &cobra.Command{
	Use:   "cancel <image|text> <id>",
	Short: "Cancel a queued generation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := horde.ParseGenerationType(args[0])
		if err != nil {
			return err
		}
		if err := getApp().GenerationCancel(cmd.Context(), kind, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s generation %s\n", kind, args[1])
		return nil
	},
}

func init() {
	generationCmd.AddCommand(generationShowCmd)
	generationCmd.AddCommand(generationCancelCmd)
}
