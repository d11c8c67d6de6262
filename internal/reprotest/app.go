package reprotest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/armadaproject/reprotest/internal/common/config"
	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/common/reproerrors"
	"github.com/armadaproject/reprotest/internal/reprotest/build"
	"github.com/armadaproject/reprotest/internal/reprotest/checksum"
	"github.com/armadaproject/reprotest/internal/reprotest/joblog"
	"github.com/armadaproject/reprotest/internal/reprotest/jobwaiter"
	"github.com/armadaproject/reprotest/internal/reprotest/junitreport"
	"github.com/armadaproject/reprotest/internal/reprotest/metrics"
	"github.com/armadaproject/reprotest/internal/reprotest/payu"
	"github.com/armadaproject/reprotest/internal/reprotest/scheduler"
	"github.com/armadaproject/reprotest/internal/reprotest/shell"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the applications's output.
	Out io.Writer
	// Runner executes payu and qstat. Tests replace it with a shelltest.FakeRunner so that
	// no scheduler is needed.
	Runner shell.Runner
	Clock  clock.PassiveClock
	// Metrics collects job and test case counts for the current invocation.
	Metrics *metrics.Metrics
	// Getwd resolves relative paths; overridden in tests.
	Getwd func() (string, error)
}

// Params struct holds all user-customizable parameters.
// Using a single struct for all CLI commands ensures that all flags are distinct
// and that they can be provided either dynamically on a command line, or
// statically in a config file that's reused between command runs.
type Params struct {
	// Base experiment to test. Defaults to the current directory.
	ControlPath string
	// Where test experiments, checksums and reports are written.
	OutputPath string
	// Payu laboratory for test experiments. Defaults to <OutputPath>/lab.
	LabPath string
	// Reference checksums for the historical test.
	// Defaults to <ControlPath>/testing/checksum/historical-<H>hr-checksum.json.
	ChecksumPath string
	// KeepArchive leaves existing experiment archives in place and skips running payu.
	KeepArchive bool

	PayuCommand  string        `validate:"required"`
	QstatCommand string        `validate:"required"`
	PollInterval time.Duration `validate:"gt=0"`
	// WaitTimeout bounds the wait for a single job. Zero waits indefinitely.
	WaitTimeout time.Duration `validate:"gte=0"`

	SchemaVersion string
	// ModelRuntime of a single run. Zero uses the model's default.
	ModelRuntime config.Seconds `validate:"gte=0"`
	// Tests to run, any of historical, determinism and restart. Empty runs all of them.
	Tests []string `validate:"dive,oneof=historical determinism restart"`

	JUnitXml        string
	MetricsTextfile string
}

// New instantiates an App with default parameters, writing to standard out and running
// commands on the local machine.
func New() *App {
	return &App{
		Params: &Params{
			PayuCommand:   "payu",
			QstatCommand:  "qstat",
			PollInterval:  scheduler.DefaultPollInterval,
			SchemaVersion: checksum.DefaultSchemaVersion,
		},
		Out:     os.Stdout,
		Runner:  shell.ExecRunner{},
		Clock:   clock.RealClock{},
		Metrics: metrics.New(),
		Getwd:   os.Getwd,
	}
}

func (a *App) validateParams() error {
	return config.Validate(a.Params)
}

// Version prints build information (e.g., current git commit) to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	return nil
}

// Wait waits for jobId and every job it chains to, then prints each job's output files.
func (a *App) Wait(ctx *reprocontext.Context, searchDir string, jobId string) error {
	if err := a.validateParams(); err != nil {
		return err
	}
	if jobId == "" {
		return errors.WithStack(&reproerrors.ErrInvalidArgument{
			Name:    "job-id",
			Value:   jobId,
			Message: "no job id provided",
		})
	}
	dir, err := a.absPath(searchDir)
	if err != nil {
		return err
	}
	waiter, err := a.newWaiter()
	if err != nil {
		return err
	}
	files, err := waiter.Wait(ctx, dir, joblog.JobId(jobId))
	a.writeMetrics(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "JOB\tSTDOUT\tSTDERR\n")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.JobId, f.Stdout, f.Stderr)
	}
	return nil
}

func (a *App) newPayu() (*payu.Client, error) {
	command, err := shell.Split(a.Params.PayuCommand)
	if err != nil {
		return nil, err
	}
	return payu.New(command, payu.WithRunner(a.Runner)), nil
}

func (a *App) newWaiter() (*jobwaiter.Waiter, error) {
	command, err := shell.Split(a.Params.QstatCommand)
	if err != nil {
		return nil, err
	}
	qstat := scheduler.NewQstat(command,
		scheduler.WithRunner(a.Runner),
		scheduler.WithPollInterval(a.Params.PollInterval),
		scheduler.WithTimeout(a.Params.WaitTimeout),
		scheduler.WithClock(a.Clock))
	return jobwaiter.New(qstat.Wait,
		jobwaiter.WithClock(a.Clock),
		jobwaiter.WithMetrics(a.Metrics)), nil
}

// absPath resolves path against the working directory. An empty path is the working directory.
func (a *App) absPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	cwd, err := a.Getwd()
	if err != nil {
		return "", errors.WithStack(err)
	}
	return filepath.Join(cwd, path), nil
}

// writeMetrics exports metrics if a textfile was requested.
func (a *App) writeMetrics(ctx *reprocontext.Context) {
	if a.Params.MetricsTextfile == "" {
		return
	}
	if err := a.Metrics.WriteTextfile(a.Params.MetricsTextfile); err != nil {
		ctx.Log.Warnf("Error writing metrics to %s: %s", a.Params.MetricsTextfile, err)
	}
}

// PrintReport writes one line per test case followed by totals.
func (a *App) PrintReport(r *Report) {
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	counts := make(map[junitreport.Outcome]int)
	for _, c := range r.Cases {
		counts[c.Outcome]++
		fmt.Fprintf(w, "%s\t%s\t%s\n", strings.ToUpper(c.Outcome.String()), c.Name, c.Message)
	}
	w.Flush()
	fmt.Fprintf(a.Out, "\n======= SUMMARY =======\n")
	fmt.Fprintf(a.Out, "Run id: %s\n", r.RunId)
	fmt.Fprintf(a.Out, "Ran %d test(s): %d passed, %d failed, %d errors\n",
		len(r.Cases), counts[junitreport.Passed], counts[junitreport.Failed], counts[junitreport.Errored])
}
