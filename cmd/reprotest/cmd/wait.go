package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/reprotest/internal/reprotest"
)

// Wait for a payu run job and all jobs it submits, then print their output files.
func waitCmd(app *reprotest.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Wait for a payu job and every job it submits to finish.",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cmd.Flags().GetString("dir")
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			return app.Wait(ctx, dir, args[0])
		},
	}

	cmd.Flags().String("dir", "", "Directory the jobs write their output files to (default is the current directory).")
	addSchedulerFlags(cmd)
	cmd.Flags().String("metrics-textfile", "", "Write metrics in the Prometheus textfile format to this path.")

	return cmd
}
