// Package experiment prepares payu experiments for testing, runs them and reads back their checksums.
//
// An experiment is a control directory, holding config.yaml and the model's own configuration,
// and a laboratory where payu keeps work and archive directories for it:
//
//	<lab>/archive/<name>/output000
//	<lab>/work/<name>
package experiment

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/common/reproerrors"
	"github.com/armadaproject/reprotest/internal/reprotest/checksum"
	"github.com/armadaproject/reprotest/internal/reprotest/joblog"
	"github.com/armadaproject/reprotest/internal/reprotest/jobwaiter"
	"github.com/armadaproject/reprotest/internal/reprotest/model"
	"github.com/armadaproject/reprotest/internal/reprotest/payu"
	"github.com/armadaproject/reprotest/internal/reprotest/payuconfig"
)

type Option func(e *Experiment)

type Experiment struct {
	ExpName     string
	ControlPath string
	LabPath     string
	ConfigPath  string
	ArchivePath string
	WorkPath    string
	Output000   string
	Output001   string
	Restart000  string
	Restart001  string

	// DisablePayuRun skips submitting and waiting, so existing archived output is used.
	DisablePayuRun bool
	// RunId is the first job of the most recent payu run.
	RunId joblog.JobId
	// Model is known once the experiment's config.yaml has been read by Setup or LoadModel.
	Model *model.Model

	payu   *payu.Client
	waiter *jobwaiter.Waiter
}

func New(controlPath string, labPath string, opts ...Option) *Experiment {
	name := filepath.Base(controlPath)
	archive := filepath.Join(labPath, "archive", name)
	e := &Experiment{
		ExpName:     name,
		ControlPath: controlPath,
		LabPath:     labPath,
		ConfigPath:  filepath.Join(controlPath, payuconfig.FileName),
		ArchivePath: archive,
		WorkPath:    filepath.Join(labPath, "work", name),
		Output000:   filepath.Join(archive, "output000"),
		Output001:   filepath.Join(archive, "output001"),
		Restart000:  filepath.Join(archive, "restart000"),
		Restart001:  filepath.Join(archive, "restart001"),
		payu:        payu.New([]string{"payu"}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithPayu(client *payu.Client) Option {
	return func(e *Experiment) {
		e.payu = client
	}
}

// WithWaiter sets how the jobs of a payu run are waited for. An experiment without a waiter
// can only be used with DisablePayuRun.
func WithWaiter(waiter *jobwaiter.Waiter) Option {
	return func(e *Experiment) {
		e.waiter = waiter
	}
}

func WithDisablePayuRun(disable bool) Option {
	return func(e *Experiment) {
		e.DisablePayuRun = disable
	}
}

// LoadModel reads the model name from config.yaml.
func (e *Experiment) LoadModel() error {
	cfg, err := payuconfig.Load(e.ConfigPath)
	if err != nil {
		return err
	}
	m, err := model.Get(cfg.GetString("model"))
	if err != nil {
		return errors.WithMessagef(err, "error reading model of experiment %s", e.ExpName)
	}
	e.Model = m
	return nil
}

// Setup replaces the control directory with a copy of baseControlPath, then points its
// config.yaml at this experiment's name and laboratory.
func (e *Experiment) Setup(baseControlPath string) error {
	fs := afero.NewOsFs()
	if err := fs.RemoveAll(e.ControlPath); err != nil {
		return errors.WithStack(err)
	}
	if err := copyTree(fs, baseControlPath, e.ControlPath); err != nil {
		return errors.WithMessagef(err, "error copying %s to %s", baseControlPath, e.ControlPath)
	}

	cfg, err := payuconfig.Load(e.ConfigPath)
	if err != nil {
		return err
	}
	cfg.Set(e.ExpName, "experiment")
	cfg.Set(e.LabPath, "laboratory")
	cfg.Set(false, "runlog")
	cfg.Set(false, "metadata", "enable")
	if err := cfg.Save(); err != nil {
		return err
	}
	return e.LoadModel()
}

// SetModelRuntime sets the length of one run in seconds; zero means the model's default.
func (e *Experiment) SetModelRuntime(seconds int) error {
	if e.Model == nil {
		if err := e.LoadModel(); err != nil {
			return err
		}
	}
	return e.Model.SetRuntime(e.ControlPath, seconds)
}

// SubmitPayuRun clears any previous run of the experiment and submits nRuns new ones.
func (e *Experiment) SubmitPayuRun(ctx *reprocontext.Context, nRuns int) error {
	if e.DisablePayuRun {
		if !e.OutputExists() {
			return errors.WithStack(&reproerrors.ErrNotFound{What: "model output", Where: e.Output000})
		}
		ctx.Log.Infof("Payu run disabled for %s, using existing output", e.ExpName)
		return nil
	}
	if err := e.payu.Sweep(ctx, e.ControlPath, true); err != nil {
		return err
	}
	stdout, err := e.payu.Run(ctx, e.ControlPath, nRuns)
	if err != nil {
		return err
	}
	runId, err := joblog.ParseRunId(stdout)
	if err != nil {
		return errors.WithMessagef(err, "error submitting payu run for %s", e.ExpName)
	}
	e.RunId = runId
	ctx.Log.Infof("Submitted payu run job %s", runId)
	return nil
}

// WaitForPayuJobs waits for the submitted run and every job it chains to.
func (e *Experiment) WaitForPayuJobs(ctx *reprocontext.Context) ([]jobwaiter.OutputFiles, error) {
	if e.DisablePayuRun {
		return nil, nil
	}
	if e.RunId == "" {
		return nil, errors.Errorf("no payu run has been submitted for %s", e.ExpName)
	}
	if e.waiter == nil {
		return nil, errors.Errorf("no job waiter configured for %s", e.ExpName)
	}
	files, err := e.waiter.Wait(ctx, e.ControlPath, e.RunId)
	if err != nil {
		return nil, errors.WithMessagef(err, "error waiting for payu jobs of %s", e.ExpName)
	}
	for _, f := range files {
		ctx.Log.Infof("Job %s output: %s, %s", f.JobId, f.Stdout, f.Stderr)
	}
	return files, nil
}

// ExtractChecksums reads checksums from outputDir, or from output000 if outputDir is empty.
func (e *Experiment) ExtractChecksums(outputDir string, schemaVersion string) (*checksum.Checksums, error) {
	if e.Model == nil {
		if err := e.LoadModel(); err != nil {
			return nil, err
		}
	}
	if outputDir == "" {
		outputDir = e.Output000
	}
	return e.Model.ExtractChecksums(e.ControlPath, outputDir, schemaVersion)
}

// OutputExists reports whether the experiment's first output directory holds model output.
func (e *Experiment) OutputExists() bool {
	if e.Model == nil {
		if err := e.LoadModel(); err != nil {
			return false
		}
	}
	return e.Model.OutputExists(e.ControlPath, e.Output000)
}

// LabPathFromControl finds the laboratory of an existing experiment by following the archive
// link payu leaves in its control directory, which points to <lab>/archive/<name>.
func LabPathFromControl(controlPath string) (string, error) {
	archive, err := filepath.EvalSymlinks(filepath.Join(controlPath, "archive"))
	if err != nil {
		return "", errors.WithMessagef(err, "error resolving archive of %s", controlPath)
	}
	info, err := os.Stat(archive)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if !info.IsDir() {
		return "", errors.Errorf("archive of %s is not a directory", controlPath)
	}
	return filepath.Dir(filepath.Dir(archive)), nil
}
