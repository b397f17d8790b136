package main

import (
	"github.com/spf13/cobra"

	"capturepair/internal/app"
)

// newRootCommand builds the command tree. opts apply to every runtime the CLI
// builds in-process or hosts as the daemon.
func newRootCommand(opts ...app.Option) *cobra.Command {
	var configFlag string
	var outputFlag string
	var logLevelFlag string
	var localFlag bool

	ctx := newCommandContext(&configFlag, &outputFlag, &logLevelFlag, &localFlag)
	ctx.buildOptions = opts

	rootCmd := &cobra.Command{
		Use:           "capturepair",
		Short:         "Prepare iOS devices for capture: drivers, developer mode, and pairing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := parseOutputFormat(outputFlag); err != nil {
				return err
			}
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json, or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&localFlag, "local", false, "Run in-process even when the daemon is reachable")

	rootCmd.AddCommand(newDriversCommand(ctx))
	rootCmd.AddCommand(newDevicesCommand(ctx))
	rootCmd.AddCommand(newWirelessCommand(ctx))
	rootCmd.AddCommand(newSetupCommand(ctx))
	rootCmd.AddCommand(newPairingFileCommand(ctx))
	rootCmd.AddCommand(newSessionCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	for _, cmd := range newDaemonCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
