package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"horde-monitor/internal/app"
	"horde-monitor/internal/config"
	"horde-monitor/internal/logging"
)

var globalFlags struct {
	config   string
	logLevel string
	apiKey   string
}

var appHandle *app.App

var rootCmd = &cobra.Command{
	Use:           "hordewatch",
	Short:         "Watch an AI Horde account's kudos and queued generations",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || !needsApp(cmd) {
			return nil
		}
		cfg, err := config.Load(globalFlags.config)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if globalFlags.logLevel != "" {
			cfg.Logging.Level = globalFlags.logLevel
		}
		if globalFlags.apiKey != "" {
			cfg.Horde.APIKey = globalFlags.apiKey
		}
		appHandle = app.NewApp(cfg, globalFlags.config, logging.NewLogger(cfg.Logging))
		return nil
	},
}

// needsApp is false for commands that must work without a readable config.
func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == versionCmd || c.Name() == "help" || c.Name() == "completion" {
			return false
		}
	}
	return true
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hordewatch:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&globalFlags.config, "config", "c", "", "Config file (default ./config.yaml, then /etc/hordewatch)")
	pf.StringVar(&globalFlags.logLevel, "log-level", "", "Override logging.level")
	pf.StringVar(&globalFlags.apiKey, "api-key", "", "Override horde.api_key; prefer HORDEWATCH_HORDE_API_KEY")

	rootCmd.AddCommand(
		runCmd,
		probeCmd,
		generationCmd,
		exportCmd,
		showCmd,
		backfillCmd,
		simulateCmd,
		versionCmd,
	)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("cli: app used before PersistentPreRunE")
	}
	return appHandle
}
