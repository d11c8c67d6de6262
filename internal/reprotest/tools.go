package reprotest

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/armadaproject/reprotest/internal/reprotest/ciconfig"
	"github.com/armadaproject/reprotest/internal/reprotest/junitreport"
)

// JunitSummary prints a one-line-per-test summary of a JUnit XML report, and writes it to
// outputPath too if given.
func (a *App) JunitSummary(reportPath string, outputPath string) error {
	summary, err := junitreport.Summarise(reportPath)
	if err != nil {
		return err
	}
	formatted := summary.Format()
	fmt.Fprintln(a.Out, formatted)
	if outputPath == "" {
		return nil
	}
	return junitreport.WriteSummary(outputPath, formatted)
}

// CiConfig resolves the CI settings for testType and reference. As JSON the settings are
// printed; otherwise, and when writing to outputPath, they are written as "key: value" lines.
func (a *App) CiConfig(testType string, reference string, configPath string, outputPath string, asJson bool) error {
	result, err := ciconfig.Parse(testType, reference, configPath)
	if err != nil {
		return err
	}
	if asJson {
		b, err := result.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Out, string(b))
	} else {
		fmt.Fprint(a.Out, result.Lines())
	}
	if outputPath == "" {
		return nil
	}
	return errors.WithStack(os.WriteFile(outputPath, []byte(result.Lines()), 0o644))
}
