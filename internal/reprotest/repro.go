package reprotest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/reprotest/internal/common/config"
	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/common/reproerrors"
	"github.com/armadaproject/reprotest/internal/common/util"
	"github.com/armadaproject/reprotest/internal/reprotest/checksum"
	"github.com/armadaproject/reprotest/internal/reprotest/experiment"
	"github.com/armadaproject/reprotest/internal/reprotest/junitreport"
	"github.com/armadaproject/reprotest/internal/reprotest/model"
	"github.com/armadaproject/reprotest/internal/reprotest/payuconfig"
)

const (
	TestHistorical  = "historical"
	TestDeterminism = "determinism"
	TestRestart     = "restart"

	expDefaultRuntime       = "exp_default_runtime"
	expDefaultRuntimeRepeat = "exp_default_runtime_repeat"
	exp1xRuntime            = "exp_1x_runtime"
	exp2xRuntime            = "exp_2x_runtime"

	classname = "reprotest.BitReproducibility"
)

// AllTests lists the reproducibility tests in the order they run.
var AllTests = []string{TestHistorical, TestDeterminism, TestRestart}

// Report is the outcome of one TestRepro invocation.
type Report struct {
	RunId string
	Cases []junitreport.Case
}

// Passed reports whether every test case passed.
func (r *Report) Passed() bool {
	for _, c := range r.Cases {
		if c.Outcome != junitreport.Passed {
			return false
		}
	}
	return true
}

// testFailure marks an error as the test's assertion failing, as opposed to the test being
// unable to run.
type testFailure struct {
	message string
	detail  string
}

func (f *testFailure) Error() string {
	if f.detail == "" {
		return f.message
	}
	return f.message + "\n" + f.detail
}

// classify sets the outcome of c from the error its test returned, and logs it.
func classify(ctx *reprocontext.Context, c *junitreport.Case, err error) {
	var failure *testFailure
	switch {
	case err == nil:
		c.Outcome = junitreport.Passed
		ctx.Log.Infof("PASSED %s", c.Name)
	case errors.As(err, &failure):
		c.Outcome = junitreport.Failed
		c.Message = failure.message
		c.Detail = failure.detail
		ctx.Log.Errorf("FAILED %s: %s", c.Name, failure)
	default:
		c.Outcome = junitreport.Errored
		c.Message = err.Error()
		ctx.Log.Errorf("ERROR %s: %s", c.Name, err)
	}
}

// reproTest holds what every test case needs.
type reproTest struct {
	app         *App
	experiments *experiment.Experiments
	runtime     int
	equal       checksum.EqualFunc
	controlPath string
	outputPath  string
}

// TestRepro runs the selected reproducibility tests against the base experiment in
// Params.ControlPath. Experiments needed by more than one test are run once. The report lists
// every test; a test whose experiments failed is reported as an error.
func (a *App) TestRepro(ctx *reprocontext.Context) (*Report, error) {
	if err := a.validateParams(); err != nil {
		return nil, err
	}
	controlPath, err := a.absPath(a.Params.ControlPath)
	if err != nil {
		return nil, err
	}
	outputPath, err := a.outputPath()
	if err != nil {
		return nil, err
	}
	labPath := a.Params.LabPath
	if labPath == "" {
		labPath = filepath.Join(outputPath, "lab")
	} else if labPath, err = a.absPath(labPath); err != nil {
		return nil, err
	}

	tests := a.Params.Tests
	if len(tests) == 0 {
		tests = AllTests
	}

	report := &Report{RunId: util.NewRunId()}
	ctx = reprocontext.WithLogField(ctx, "run", report.RunId)
	ctx.Log.Infof("Testing %s with output in %s", controlPath, outputPath)

	cfg, err := payuconfig.Load(filepath.Join(controlPath, payuconfig.FileName))
	if err != nil {
		return nil, err
	}
	m, err := model.Get(cfg.GetString("model"))
	if err != nil {
		return nil, err
	}

	payuClient, err := a.newPayu()
	if err != nil {
		return nil, err
	}
	waiter, err := a.newWaiter()
	if err != nil {
		return nil, err
	}
	rt := &reproTest{
		app: a,
		experiments: experiment.NewExperiments(controlPath, outputPath, labPath,
			experiment.WithPayu(payuClient),
			experiment.WithWaiter(waiter),
			experiment.WithDisablePayuRun(a.Params.KeepArchive)),
		runtime:     m.RuntimeOrDefault(int(a.Params.ModelRuntime)),
		equal:       m.Equal,
		controlPath: controlPath,
		outputPath:  outputPath,
	}

	for _, test := range tests {
		if err := rt.request(test); err != nil {
			return nil, err
		}
	}
	if slices.Contains(tests, TestHistorical) {
		// Checksums left over from an earlier invocation must not be mistaken for this run's.
		if err := os.Remove(rt.historicalChecksumPath()); err != nil && !os.IsNotExist(err) {
			return nil, errors.WithStack(err)
		}
	}

	start := a.Clock.Now()
	if err := rt.experiments.Run(ctx); err != nil {
		ctx.Log.Warnf("Some experiments failed: %s", err)
	}
	setupTime := a.Clock.Since(start)

	builder := junitreport.NewBuilder("reprotest", report.RunId, a.Clock)
	for _, test := range AllTests {
		if !slices.Contains(tests, test) {
			continue
		}
		testCtx := reprocontext.WithLogField(ctx, "test", test)
		caseStart := a.Clock.Now()
		c := junitreport.Case{Name: "test_repro_" + test, Classname: classname}
		err := rt.run(testCtx, test)
		// The experiments ran concurrently, so each test is charged the time to set them up.
		c.Duration = setupTime + a.Clock.Since(caseStart)
		classify(testCtx, &c, err)
		a.Metrics.RecordTestCase(test, c.Outcome.String())
		builder.Add(c)
		report.Cases = append(report.Cases, c)
	}

	if a.Params.JUnitXml != "" {
		path, err := a.absPath(a.Params.JUnitXml)
		if err != nil {
			return nil, err
		}
		if err := builder.WriteFile(path); err != nil {
			return nil, err
		}
		ctx.Log.Infof("Wrote JUnit report to %s", path)
	}
	a.writeMetrics(ctx)
	return report, nil
}

// outputPath defaults to the per-user scratch directory used on the HPC system.
func (a *App) outputPath() (string, error) {
	if a.Params.OutputPath != "" {
		return a.absPath(a.Params.OutputPath)
	}
	project, user := os.Getenv("PROJECT"), os.Getenv("USER")
	if project == "" || user == "" {
		return "", errors.WithStack(&reproerrors.ErrInvalidArgument{
			Name:    "output-path",
			Value:   "",
			Message: "no output path given and $PROJECT or $USER is not set to derive one",
		})
	}
	return filepath.Join("/scratch", project, user, "test-model-repro"), nil
}

func (rt *reproTest) request(test string) error {
	var requests []experiment.Request
	switch test {
	case TestHistorical:
		requests = []experiment.Request{{Name: expDefaultRuntime, Runtime: rt.runtime}}
	case TestDeterminism:
		requests = []experiment.Request{
			{Name: expDefaultRuntime, Runtime: rt.runtime},
			{Name: expDefaultRuntimeRepeat, Runtime: rt.runtime},
		}
	case TestRestart:
		requests = []experiment.Request{
			{Name: exp2xRuntime, Runtime: 2 * rt.runtime},
			{Name: exp1xRuntime, NRuns: 2, Runtime: rt.runtime},
		}
	default:
		return errors.WithStack(&reproerrors.ErrInvalidArgument{
			Name:    "tests",
			Value:   test,
			Message: fmt.Sprintf("Unknown test %s, expected one of %s", test, strings.Join(AllTests, ", ")),
		})
	}
	for _, req := range requests {
		if err := rt.experiments.Add(req); err != nil {
			return err
		}
	}
	return nil
}

func (rt *reproTest) run(ctx *reprocontext.Context, test string) error {
	switch test {
	case TestHistorical:
		return rt.historical(ctx)
	case TestDeterminism:
		return rt.determinism(ctx)
	case TestRestart:
		return rt.restart(ctx)
	}
	return errors.Errorf("unknown test %s", test)
}

// experiment returns a set-up experiment, or why it could not be run.
func (rt *reproTest) experiment(name string) (*experiment.Experiment, error) {
	exp, ok := rt.experiments.Get(name)
	if !ok {
		return nil, errors.Errorf("experiment %s was not requested", name)
	}
	if err := rt.experiments.Err(name); err != nil {
		return nil, errors.WithMessagef(err, "There was an error running experiment %s", name)
	}
	return exp, nil
}

func (rt *reproTest) historicalChecksumPath() string {
	return filepath.Join(rt.outputPath, "checksum", historicalChecksumName(rt.runtime))
}

func historicalChecksumName(runtime int) string {
	return fmt.Sprintf("historical-%shr-checksum.json", config.Seconds(runtime).Hours())
}

// historical compares checksums of a default-length run against checksums kept with the
// configuration. The run's checksums are written out whether or not they match, so they can
// be used to update the reference.
func (rt *reproTest) historical(ctx *reprocontext.Context) error {
	exp, err := rt.experiment(expDefaultRuntime)
	if err != nil {
		return err
	}
	got, err := exp.ExtractChecksums("", rt.app.Params.SchemaVersion)
	if err != nil {
		return err
	}
	outPath := rt.historicalChecksumPath()
	if err := checksum.Write(outPath, got); err != nil {
		return err
	}
	ctx.Log.Infof("Wrote checksums to %s", outPath)

	refPath := rt.app.Params.ChecksumPath
	if refPath == "" {
		refPath = filepath.Join(rt.controlPath, "testing", "checksum", historicalChecksumName(rt.runtime))
	} else if refPath, err = rt.app.absPath(refPath); err != nil {
		return err
	}
	if _, err := os.Stat(refPath); os.IsNotExist(err) {
		return &testFailure{message: fmt.Sprintf("No reference checksums found at %s", refPath)}
	}
	want, err := checksum.Read(refPath)
	if err != nil {
		return err
	}
	return rt.compare(got, want, fmt.Sprintf("Checksums do not match reference checksums in %s", refPath))
}

// determinism checks that two identical runs produce identical checksums.
func (rt *reproTest) determinism(ctx *reprocontext.Context) error {
	exp, err := rt.experiment(expDefaultRuntime)
	if err != nil {
		return err
	}
	repeat, err := rt.experiment(expDefaultRuntimeRepeat)
	if err != nil {
		return err
	}
	got, err := exp.ExtractChecksums("", rt.app.Params.SchemaVersion)
	if err != nil {
		return err
	}
	want, err := repeat.ExtractChecksums("", rt.app.Params.SchemaVersion)
	if err != nil {
		return err
	}
	ctx.Log.Debugf("Comparing %d fields", len(got.Output))
	return rt.compare(got, want, fmt.Sprintf("Checksums of %s and %s do not match", expDefaultRuntime, expDefaultRuntimeRepeat))
}

// restart checks that one run of twice the length matches two consecutive runs, i.e. that
// restarting the model doesn't change its answers.
func (rt *reproTest) restart(ctx *reprocontext.Context) error {
	long, err := rt.experiment(exp2xRuntime)
	if err != nil {
		return err
	}
	short, err := rt.experiment(exp1xRuntime)
	if err != nil {
		return err
	}
	schema := rt.app.Params.SchemaVersion
	longChecksums, err := long.ExtractChecksums("", schema)
	if err != nil {
		return err
	}
	short0, err := short.ExtractChecksums(short.Output000, schema)
	if err != nil {
		return err
	}
	short1, err := short.ExtractChecksums(short.Output001, schema)
	if err != nil {
		return err
	}
	c := checksum.DiffOverRestarts(longChecksums, short0, short1, rt.equal)
	rt.app.Metrics.RecordChecksumFields(c.Fields-len(c.MismatchedFields), len(c.MismatchedFields))
	if !c.Match() {
		return &testFailure{
			message: fmt.Sprintf("Checksums of %s are not reproduced by the restarted runs of %s", exp2xRuntime, exp1xRuntime),
			detail:  strings.Join(c.Unequal, "\n"),
		}
	}
	ctx.Log.Debugf("All %d fields reproduced over restart", len(longChecksums.Output))
	return nil
}

func (rt *reproTest) compare(got, want *checksum.Checksums, message string) error {
	c := checksum.Diff(got, want, checksum.Options{Strict: true, Equal: rt.equal})
	rt.app.Metrics.RecordChecksumFields(c.Compared-len(c.Mismatches), len(c.Mismatches))
	if c.Match() {
		return nil
	}
	return &testFailure{message: message, detail: c.Err().Error()}
}
