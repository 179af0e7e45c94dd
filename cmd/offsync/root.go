package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var (
		configFlag string
		apiFlag    string
		tenantFlag string
		jsonFlag   bool
		localFlag  bool
	)

	ctx := newCommandContext(&configFlag, &apiFlag, &tenantFlag, &jsonFlag, &localFlag)

	rootCmd := &cobra.Command{
		Use:           "offsync",
		Short:         "Offline operation queue and sync CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	flags.StringVar(&apiFlag, "api", "", "Daemon API address (defaults to api.bind)")
	flags.StringVarP(&tenantFlag, "tenant", "t", "", "Tenant to operate on (defaults to the only active tenant)")
	flags.BoolVar(&jsonFlag, "json", false, "Write machine-readable JSON output")
	flags.BoolVar(&localFlag, "local", false, "Use the queue database directly instead of the daemon API")

	rootCmd.AddCommand(newEnqueueCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newPendingCommand(ctx))
	rootCmd.AddCommand(newSyncCommand(ctx))
	rootCmd.AddCommand(newRequeueCommand(ctx))
	rootCmd.AddCommand(newPurgeCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newHealthCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newStartCommand(ctx))
	rootCmd.AddCommand(newStopCommand(ctx))
	rootCmd.AddCommand(newDaemonRunCommand(ctx))

	return rootCmd
}
