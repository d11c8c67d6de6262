package cmd

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/armadaproject/reprotest/internal/reprotest"
)

// Compare existing experiments pairwise.
func compareCmd(app *reprotest.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [control-dir...]",
		Short: "Check that existing experiments produced the same checksums.",
		Long: `Check that existing experiments produced the same checksums.

Every pair of the given control directories is compared, using output000 of each
experiment's archive. Directories can be given as arguments, with --dirs as a space
separated list, or both.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs, err := cmd.Flags().GetString("dirs")
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			report, err := app.Compare(ctx, append(strings.Fields(dirs), args...))
			if err != nil {
				return err
			}
			app.PrintReport(report)
			if !report.Passed() {
				return errors.New("not all experiments reproduce each other")
			}
			return nil
		},
	}

	cmd.Flags().String("dirs", "", "Space separated list of experiment control directories to compare.")
	addReportFlags(cmd)

	return cmd
}
