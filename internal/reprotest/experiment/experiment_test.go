package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/common/reproerrors"
	"github.com/armadaproject/reprotest/internal/reprotest/joblog"
	"github.com/armadaproject/reprotest/internal/reprotest/jobwaiter"
	"github.com/armadaproject/reprotest/internal/reprotest/model"
	"github.com/armadaproject/reprotest/internal/reprotest/payu"
	"github.com/armadaproject/reprotest/internal/reprotest/payuconfig"
	"github.com/armadaproject/reprotest/internal/reprotest/shell/shelltest"
)

const om2Config = `model: access-om2
experiment: base
runlog: true
`

const om2Namelist = `&date_manager_nml
    restart_period = 5, 0, 0
/
`

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// baseControl creates an access-om2 control directory that has been run before.
func baseControl(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "base")
	writeFile(t, filepath.Join(base, "config.yaml"), om2Config)
	writeFile(t, filepath.Join(base, "accessom2.nml"), om2Namelist)
	writeFile(t, filepath.Join(base, "ocean", "input.nml"), "&ocean_model_nml\n/\n")
	archive := filepath.Join(root, "lab", "archive", "base")
	require.NoError(t, os.MkdirAll(archive, 0o755))
	require.NoError(t, os.Symlink(archive, filepath.Join(base, "archive")))
	return base
}

func waitNothing(*reprocontext.Context, joblog.JobId) error {
	return nil
}

// fakePayu answers sweep and run, and writes a finished PBS log for the submitted job.
func fakePayu(runId string) *shelltest.FakeRunner {
	runner := shelltest.NewFakeRunner()
	for _, n := range []string{"1", "2"} {
		runner.Add([]string{"payu", "run", "-n", n}, runId+"\npayu: Found modules\nqsub -q normal -- /env/bin/payu-run\n", nil)
	}
	runner.Add([]string{"payu", "sweep", "--hard"}, "", nil)
	runner.OnRun = func(dir string, argv []string) {
		if argv[1] != "run" {
			return
		}
		prefix := filepath.Join(dir, filepath.Base(dir))
		number := joblog.JobId(runId).Number()
		_ = os.WriteFile(prefix+".o"+number, []byte("Exit Status: 0\n"), 0o644)
		_ = os.WriteFile(prefix+".e"+number, nil, 0o644)
	}
	return runner
}

func TestNew(t *testing.T) {
	e := New("/output/control/exp_default_runtime", "/output/lab")

	assert.Equal(t, "exp_default_runtime", e.ExpName)
	assert.Equal(t, "/output/control/exp_default_runtime/config.yaml", e.ConfigPath)
	assert.Equal(t, "/output/lab/archive/exp_default_runtime", e.ArchivePath)
	assert.Equal(t, "/output/lab/work/exp_default_runtime", e.WorkPath)
	assert.Equal(t, "/output/lab/archive/exp_default_runtime/output000", e.Output000)
	assert.Equal(t, "/output/lab/archive/exp_default_runtime/output001", e.Output001)
	assert.Equal(t, "/output/lab/archive/exp_default_runtime/restart000", e.Restart000)
	assert.Equal(t, "/output/lab/archive/exp_default_runtime/restart001", e.Restart001)
	assert.False(t, e.DisablePayuRun)
	assert.Equal(t, joblog.JobId(""), e.RunId)
	assert.Nil(t, e.Model)
}

func TestSetup(t *testing.T) {
	base := baseControl(t)
	output := t.TempDir()
	lab := filepath.Join(output, "lab")
	e := New(filepath.Join(output, "control", "exp_default_runtime"), lab)

	// Leftovers from an earlier invocation are removed.
	writeFile(t, filepath.Join(e.ControlPath, "stale"), "")

	require.NoError(t, e.Setup(base))

	cfg, err := payuconfig.Load(e.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "exp_default_runtime", cfg.GetString("experiment"))
	assert.Equal(t, lab, cfg.GetString("laboratory"))
	runlog, _ := cfg.Get("runlog")
	assert.Equal(t, false, runlog)
	enable, _ := cfg.Get("metadata", "enable")
	assert.Equal(t, false, enable)

	require.NotNil(t, e.Model)
	assert.Equal(t, model.AccessOm2, e.Model.Name)

	assert.FileExists(t, filepath.Join(e.ControlPath, "accessom2.nml"))
	assert.FileExists(t, filepath.Join(e.ControlPath, "ocean", "input.nml"))
	assert.NoFileExists(t, filepath.Join(e.ControlPath, "stale"))
	_, err = os.Lstat(filepath.Join(e.ControlPath, "archive"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, e.SetModelRuntime(0))
	b, err := os.ReadFile(filepath.Join(e.ControlPath, "accessom2.nml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "restart_period = 0, 0, 10800")
	// The base experiment is untouched.
	b, err = os.ReadFile(filepath.Join(base, "accessom2.nml"))
	require.NoError(t, err)
	assert.Equal(t, om2Namelist, string(b))
}

func TestSetup_UnknownModel(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "config.yaml"), "model: cice\n")
	e := New(filepath.Join(t.TempDir(), "exp"), t.TempDir())

	err := e.Setup(base)
	assert.Equal(t, reproerrors.KindInvalidArgument, reproerrors.KindFromError(err))
}

func TestSubmitAndWait(t *testing.T) {
	control := filepath.Join(t.TempDir(), "exp_default_runtime")
	require.NoError(t, os.MkdirAll(control, 0o755))
	runner := fakePayu("1001.gadi-pbs")
	e := New(control, t.TempDir(),
		WithPayu(payu.New([]string{"payu"}, payu.WithRunner(runner))),
		WithWaiter(jobwaiter.New(waitNothing)))
	ctx := reprocontext.Background()

	require.NoError(t, e.SubmitPayuRun(ctx, 2))
	assert.Equal(t, joblog.JobId("1001.gadi-pbs"), e.RunId)
	assert.Equal(t, []string{"payu sweep --hard", "payu run -n 2"}, runner.Commands())

	files, err := e.WaitForPayuJobs(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(control, "exp_default_runtime.o1001"), files[0].Stdout)
	assert.Equal(t, filepath.Join(control, "exp_default_runtime.e1001"), files[0].Stderr)
}

func TestSubmitPayuRun_NoJobId(t *testing.T) {
	runner := shelltest.NewFakeRunner().
		Add([]string{"payu", "sweep", "--hard"}, "", nil).
		Add([]string{"payu", "run", "-n", "1"}, "payu: error: no laboratory\n", nil)
	e := New(t.TempDir(), t.TempDir(), WithPayu(payu.New([]string{"payu"}, payu.WithRunner(runner))))

	err := e.SubmitPayuRun(reprocontext.Background(), 1)
	assert.Equal(t, reproerrors.KindNotFound, reproerrors.KindFromError(err))
	assert.Equal(t, joblog.JobId(""), e.RunId)
}

func TestDisablePayuRun(t *testing.T) {
	tests := map[string]struct {
		output  string
		wantErr bool
	}{
		"archived output is used": {output: "[chksum] test_checksum               0\n"},
		"missing output":          {wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			runner := shelltest.NewFakeRunner()
			control := filepath.Join(t.TempDir(), "exp1")
			writeFile(t, filepath.Join(control, "config.yaml"), om2Config)
			e := New(control, t.TempDir(),
				WithPayu(payu.New([]string{"payu"}, payu.WithRunner(runner))),
				WithDisablePayuRun(true))
			if tc.output != "" {
				writeFile(t, filepath.Join(e.Output000, "access-om2.out"), tc.output)
			}
			ctx := reprocontext.Background()

			err := e.SubmitPayuRun(ctx, 1)
			assert.Empty(t, runner.Commands())
			if tc.wantErr {
				assert.Equal(t, reproerrors.KindNotFound, reproerrors.KindFromError(err))
				assert.ErrorContains(t, err, "model output not found in "+e.Output000)
				return
			}
			require.NoError(t, err)
			files, err := e.WaitForPayuJobs(ctx)
			require.NoError(t, err)
			assert.Empty(t, files)
		})
	}
}

func TestWaitForPayuJobs_NotSubmitted(t *testing.T) {
	e := New(t.TempDir(), t.TempDir(), WithWaiter(jobwaiter.New(waitNothing)))
	_, err := e.WaitForPayuJobs(reprocontext.Background())
	assert.Error(t, err)
}

func TestExtractChecksums(t *testing.T) {
	control := filepath.Join(t.TempDir(), "exp1")
	lab := t.TempDir()
	writeFile(t, filepath.Join(control, "config.yaml"), om2Config)
	e := New(control, lab)
	writeFile(t, filepath.Join(e.Output000, "access-om2.out"), "[chksum] test_checksum               0\n")
	writeFile(t, filepath.Join(e.Output001, "access-om2.out"), "[chksum] test_checksum               1\n")

	c, err := e.ExtractChecksums("", "")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"test_checksum": {"0"}}, c.Output)
	assert.True(t, e.OutputExists())

	c, err = e.ExtractChecksums(e.Output001, "")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"test_checksum": {"1"}}, c.Output)
}

func TestLabPathFromControl(t *testing.T) {
	base := baseControl(t)
	lab, err := LabPathFromControl(base)
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(filepath.Join(filepath.Dir(base), "lab"))
	require.NoError(t, err)
	assert.Equal(t, want, lab)

	_, err = LabPathFromControl(t.TempDir())
	assert.Error(t, err)
}

func TestCopyTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := afero.Afero{Fs: fs}
	require.NoError(t, a.WriteFile("/base/config.yaml", []byte("model: access\n"), 0o644))
	require.NoError(t, a.WriteFile("/base/atmosphere/namelists", []byte("&nlst\n/\n"), 0o600))
	require.NoError(t, a.WriteFile("/base/.git/HEAD", []byte("ref: main\n"), 0o644))

	require.NoError(t, copyTree(fs, "/base", "/copy"))

	b, err := a.ReadFile("/copy/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "model: access\n", string(b))
	b, err = a.ReadFile("/copy/atmosphere/namelists")
	require.NoError(t, err)
	assert.Equal(t, "&nlst\n/\n", string(b))
	exists, err := a.Exists("/copy/.git/HEAD")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExperimentsAdd(t *testing.T) {
	tests := map[string]struct {
		requests []Request
		want     []Request
		wantErr  string
	}{
		"defaults": {
			requests: []Request{{Name: "exp_default_runtime"}},
			want:     []Request{{Name: "exp_default_runtime", NRuns: 1}},
		},
		"largest number of runs wins": {
			requests: []Request{
				{Name: "exp_1x_runtime", NRuns: 2},
				{Name: "exp_1x_runtime", NRuns: 1},
				{Name: "exp_default_runtime"},
			},
			want: []Request{
				{Name: "exp_1x_runtime", NRuns: 2},
				{Name: "exp_default_runtime", NRuns: 1},
			},
		},
		"explicit runtime fills in default": {
			requests: []Request{
				{Name: "exp", NRuns: 1},
				{Name: "exp", NRuns: 1, Runtime: 86400},
				{Name: "exp", NRuns: 1},
			},
			want: []Request{{Name: "exp", NRuns: 1, Runtime: 86400}},
		},
		"conflicting runtimes": {
			requests: []Request{
				{Name: "exp", Runtime: 100},
				{Name: "exp", Runtime: 86400},
			},
			wantErr: "Experiment exp has conflicting model runtimes: 100 and 86400",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			es := NewExperiments("/base", "/output", "/output/lab")
			var err error
			for _, req := range tc.requests {
				if err = es.Add(req); err != nil {
					break
				}
			}
			if tc.wantErr != "" {
				assert.EqualError(t, err, tc.wantErr)
				assert.Equal(t, reproerrors.KindConflictingRuntime, reproerrors.KindFromError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, es.Requests())
			for _, req := range tc.want {
				e, ok := es.Get(req.Name)
				require.True(t, ok)
				assert.Equal(t, filepath.Join("/output", "control", req.Name), e.ControlPath)
				assert.Equal(t, "/output/lab", e.LabPath)
			}
		})
	}
}

func TestExperimentsRun(t *testing.T) {
	base := baseControl(t)
	output := t.TempDir()
	runner := fakePayu("2002.gadi-pbs")
	es := NewExperiments(base, output, filepath.Join(output, "lab"),
		WithPayu(payu.New([]string{"payu"}, payu.WithRunner(runner))),
		WithWaiter(jobwaiter.New(waitNothing)))
	require.NoError(t, es.Add(Request{Name: "exp_2x_runtime", Runtime: 21600}))
	require.NoError(t, es.Add(Request{Name: "exp_1x_runtime", NRuns: 2, Runtime: 10800}))

	require.NoError(t, es.Run(reprocontext.Background()))

	for name, runtime := range map[string]int{"exp_2x_runtime": 21600, "exp_1x_runtime": 10800} {
		e, ok := es.Get(name)
		require.True(t, ok)
		assert.Equal(t, joblog.JobId("2002.gadi-pbs"), e.RunId, name)
		b, err := os.ReadFile(filepath.Join(e.ControlPath, "accessom2.nml"))
		require.NoError(t, err)
		assert.Contains(t, string(b), fmt.Sprintf("restart_period = 0, 0, %d", runtime), name)
	}

	commands := strings.Join(runner.Commands(), "\n")
	assert.Contains(t, commands, "payu run -n 2")
	assert.Contains(t, commands, "payu run -n 1")
}

func TestExperimentsRun_JobFailed(t *testing.T) {
	base := baseControl(t)
	output := t.TempDir()
	runner := fakePayu("3003.gadi-pbs")
	runner.OnRun = func(dir string, argv []string) {
		if argv[1] == "run" {
			_ = os.WriteFile(filepath.Join(dir, "exp.o3003"), []byte("Exit Status: 1\n"), 0o644)
		}
	}
	es := NewExperiments(base, output, filepath.Join(output, "lab"),
		WithPayu(payu.New([]string{"payu"}, payu.WithRunner(runner))),
		WithWaiter(jobwaiter.New(waitNothing)))
	require.NoError(t, es.Add(Request{Name: "exp"}))

	err := es.Run(reprocontext.Background())
	assert.Equal(t, reproerrors.KindJobFailed, reproerrors.KindFromError(err))
}

func TestExperimentPairs(t *testing.T) {
	tests := map[string]struct {
		dirs      string
		wantPairs [][2]string
	}{
		"two experiments": {
			dirs:      "exp1 exp2",
			wantPairs: [][2]string{{"exp1", "exp2"}},
		},
		"all combinations": {
			dirs: "exp1 exp2 exp3 exp4",
			wantPairs: [][2]string{
				{"exp1", "exp2"},
				{"exp1", "exp3"},
				{"exp1", "exp4"},
				{"exp2", "exp3"},
				{"exp2", "exp4"},
				{"exp3", "exp4"},
			},
		},
		"duplicates removed": {
			dirs:      "exp1 exp2 exp1 exp2",
			wantPairs: [][2]string{{"exp1", "exp2"}},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cwd := t.TempDir()
			dirs := strings.Fields(tc.dirs)
			for _, dir := range dirs {
				require.NoError(t, os.MkdirAll(filepath.Join(cwd, dir), 0o755))
			}

			pairs, err := ExperimentPairs(dirs, cwd)
			require.NoError(t, err)
			var got [][2]string
			for _, p := range pairs {
				assert.True(t, filepath.IsAbs(p.First))
				assert.True(t, filepath.IsAbs(p.Second))
				got = append(got, [2]string{filepath.Base(p.First), filepath.Base(p.Second)})
			}
			assert.Equal(t, tc.wantPairs, got)
		})
	}
}

func TestExperimentPairs_AbsolutePaths(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	exp1 := filepath.Join(root, "exp1")
	exp2 := filepath.Join(root, "exp2")
	require.NoError(t, os.Mkdir(exp1, 0o755))
	require.NoError(t, os.Mkdir(exp2, 0o755))

	pairs, err := ExperimentPairs([]string{exp1, exp2}, "/elsewhere")
	require.NoError(t, err)
	assert.Equal(t, []Pair{{First: exp1, Second: exp2}}, pairs)
	assert.Equal(t, "exp1 vs exp2", pairs[0].String())
}

func TestExperimentPairs_Errors(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(cwd, "exp1"), 0o755))
	writeFile(t, filepath.Join(cwd, "exp1.txt"), "")

	tests := map[string]struct {
		dirs    []string
		wantErr string
	}{
		"missing directory": {
			dirs:    []string{"exp1", "exp2"},
			wantErr: "Directory exp2 does not exist",
		},
		"not a directory": {
			dirs:    []string{"exp1", "exp1.txt"},
			wantErr: "Path exp1.txt is not a directory",
		},
		"not enough directories": {
			dirs:    []string{"exp1"},
			wantErr: "Need at least two directories with --dirs to compare",
		},
		"same directory twice": {
			dirs:    []string{"exp1", "./exp1"},
			wantErr: "Need at least two directories with --dirs to compare",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ExperimentPairs(tc.dirs, cwd)
			assert.EqualError(t, err, tc.wantErr)
			assert.Equal(t, reproerrors.KindInvalidArgument, reproerrors.KindFromError(err))
		})
	}
}
