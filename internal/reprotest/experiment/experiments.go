package experiment

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/common/reproerrors"
)

// Request asks for an experiment to be run for NRuns consecutive runs of Runtime seconds each.
// Zero values mean one run and the model's default runtime.
type Request struct {
	Name    string
	NRuns   int
	Runtime int
}

// Experiments is the set of experiments requested by the tests of one invocation.
// Tests that need the same experiment share it.
type Experiments struct {
	baseControlPath string
	controlRoot     string
	labPath         string
	opts            []Option

	requests []*Request
	byName   map[string]*Experiment

	mu   sync.Mutex
	errs map[string]error
}

// NewExperiments creates experiments as copies of baseControlPath under <outputPath>/control,
// with output archived in labPath.
func NewExperiments(baseControlPath string, outputPath string, labPath string, opts ...Option) *Experiments {
	return &Experiments{
		baseControlPath: baseControlPath,
		controlRoot:     filepath.Join(outputPath, "control"),
		labPath:         labPath,
		opts:            opts,
		byName:          make(map[string]*Experiment),
		errs:            make(map[string]error),
	}
}

// Add merges req into the requested experiments. The number of runs is the largest requested;
// two different explicit runtimes for one experiment are a conflict.
func (es *Experiments) Add(req Request) error {
	if req.NRuns < 1 {
		req.NRuns = 1
	}
	for _, existing := range es.requests {
		if existing.Name != req.Name {
			continue
		}
		if existing.NRuns < req.NRuns {
			existing.NRuns = req.NRuns
		}
		switch {
		case req.Runtime == 0 || req.Runtime == existing.Runtime:
		case existing.Runtime == 0:
			existing.Runtime = req.Runtime
		default:
			return errors.WithStack(&reproerrors.ErrConflictingRuntime{
				Experiment: req.Name,
				Runtime:    existing.Runtime,
				Other:      req.Runtime,
			})
		}
		return nil
	}
	r := req
	es.requests = append(es.requests, &r)
	es.byName[req.Name] = New(filepath.Join(es.controlRoot, req.Name), es.labPath, es.opts...)
	return nil
}

// Requests returns the merged requests sorted by experiment name.
func (es *Experiments) Requests() []Request {
	result := make([]Request, 0, len(es.requests))
	for _, r := range es.requests {
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func (es *Experiments) Get(name string) (*Experiment, bool) {
	e, ok := es.byName[name]
	return e, ok
}

// Run sets up, submits and waits for every requested experiment. Experiments run concurrently
// and independently: one failing doesn't stop the others. The returned error combines every
// failure; Err gives the failure of a single experiment.
func (es *Experiments) Run(ctx *reprocontext.Context) error {
	g, gctx := reprocontext.ErrGroup(ctx)
	for _, req := range es.Requests() {
		req := req
		exp := es.byName[req.Name]
		g.Go(func() error {
			expCtx := reprocontext.WithLogField(gctx, "experiment", req.Name)
			if err := es.run(expCtx, exp, req); err != nil {
				expCtx.Log.Errorf("Experiment %s failed: %s", req.Name, err)
				es.mu.Lock()
				es.errs[req.Name] = err
				es.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var result *multierror.Error
	for _, req := range es.Requests() {
		if err := es.Err(req.Name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Err returns why the named experiment failed in the last Run, or nil.
func (es *Experiments) Err(name string) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.errs[name]
}

func (es *Experiments) run(ctx *reprocontext.Context, exp *Experiment, req Request) error {
	if err := exp.Setup(es.baseControlPath); err != nil {
		return errors.WithMessagef(err, "error setting up experiment %s", req.Name)
	}
	if err := exp.SetModelRuntime(req.Runtime); err != nil {
		return err
	}
	if err := exp.Model.Validate(exp.ControlPath); err != nil {
		return err
	}
	if err := exp.SubmitPayuRun(ctx, req.NRuns); err != nil {
		return err
	}
	_, err := exp.WaitForPayuJobs(ctx)
	return err
}
