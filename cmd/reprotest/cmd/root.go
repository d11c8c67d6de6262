package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/reprotest/internal/reprotest"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reprotest",
		Short: "reprotest checks that climate model configurations reproduce their results.",
		Long: `reprotest checks that climate model configurations reproduce their results.

Experiments are run with payu on a PBS cluster, and the checksums the models write
to their output are compared between runs and against checksums kept with each
configuration.

Persistent config can be saved in a config file so it doesn't have to be specified every command.

Example structure:
payuCommand: payu
pollInterval: 1m
outputPath: /scratch/tm70/user/test-model-repro

The location of this file can be passed in using the --config argument.
If not provided, $HOME/.reprotest.yaml is used. Every setting can also be given as
an environment variable, e.g. REPROTEST_OUTPUTPATH.`,
		SilenceUsage: true,
	}

	addPersistentFlags(cmd)

	cmd.AddCommand(
		versionCmd(reprotest.New()),
		testCmd(reprotest.New()),
		compareCmd(reprotest.New()),
		waitCmd(reprotest.New()),
		junitSummaryCmd(reprotest.New()),
		ciConfigCmd(reprotest.New()),
	)

	return cmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Config file (default is $HOME/.reprotest.yaml).")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages with their fields.")
}

// Print version info and exit.
func versionCmd(app *reprotest.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Version()
		},
	}
	return cmd
}
