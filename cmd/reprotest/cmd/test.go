package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/armadaproject/reprotest/internal/reprotest"
)

// Run experiments from a model configuration and check their checksums reproduce.
// Exits with an error if any test did not pass.
func testCmd(app *reprotest.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run bit reproducibility tests on a model configuration.",
		Long: `Run bit reproducibility tests on a model configuration.

historical   compares checksums of a default-length run with those saved in the
             configuration under testing/checksum
determinism  compares checksums of two identical runs
restart      compares one run of twice the default length with two consecutive runs`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			report, err := app.TestRepro(ctx)
			if err != nil {
				return err
			}
			app.PrintReport(report)
			if !report.Passed() {
				return errors.New("not all tests passed")
			}
			return nil
		},
	}

	cmd.Flags().String("control-path", "", "Model configuration to test (default is the current directory).")
	cmd.Flags().String("output-path", "", "Where test experiments and checksums are written (default is /scratch/$PROJECT/$USER/test-model-repro).")
	cmd.Flags().String("lab-path", "", "Payu laboratory for test experiments (default is <output-path>/lab).")
	cmd.Flags().String("checksum-path", "", "Reference checksums for the historical test (default is <control-path>/testing/checksum/historical-<hours>hr-checksum.json).")
	cmd.Flags().Bool("keep-archive", false, "Use existing experiment archives instead of running payu.")
	cmd.Flags().StringSlice("tests", reprotest.AllTests, "Tests to run.")
	cmd.Flags().String("model-runtime", "", "Length of a single run, in seconds or as a duration such as 24h (default is the model's).")
	addReportFlags(cmd)
	addSchedulerFlags(cmd)

	return cmd
}
