package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/reprotest/internal/reprotest"
)

func junitSummaryCmd(app *reprotest.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "junit-summary",
		Short: "Summarise a JUnit XML report for a pull request comment.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("filepath")
			if err != nil {
				return err
			}
			output, err := cmd.Flags().GetString("output-filepath")
			if err != nil {
				return err
			}
			return app.JunitSummary(path, output)
		},
	}

	cmd.Flags().String("filepath", "", "JUnit XML report.")
	cmd.Flags().String("output-filepath", "", "Also write the summary to this file.")
	_ = cmd.MarkFlagRequired("filepath")

	return cmd
}

func ciConfigCmd(app *reprotest.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ci-config",
		Short: "Print the CI settings for a test type and git reference.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			testType, err := flags.GetString("test-type")
			if err != nil {
				return err
			}
			reference, err := flags.GetString("reference")
			if err != nil {
				return err
			}
			configPath, err := flags.GetString("config-filepath")
			if err != nil {
				return err
			}
			output, err := flags.GetString("output-filepath")
			if err != nil {
				return err
			}
			asJson, err := flags.GetBool("json")
			if err != nil {
				return err
			}
			return app.CiConfig(testType, reference, configPath, output, asJson)
		},
	}

	cmd.Flags().String("test-type", "", "Test type, e.g. reproducibility or qa.")
	cmd.Flags().String("reference", "", "Git branch or tag being tested.")
	cmd.Flags().String("config-filepath", "config/ci.json", "CI configuration file.")
	cmd.Flags().String("output-filepath", "", "Also write the settings as key: value lines to this file.")
	cmd.Flags().Bool("json", false, "Print the settings as JSON.")
	_ = cmd.MarkFlagRequired("test-type")
	_ = cmd.MarkFlagRequired("reference")

	return cmd
}
