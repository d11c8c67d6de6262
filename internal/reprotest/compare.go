package reprotest

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/common/util"
	"github.com/armadaproject/reprotest/internal/reprotest/checksum"
	"github.com/armadaproject/reprotest/internal/reprotest/experiment"
	"github.com/armadaproject/reprotest/internal/reprotest/junitreport"
)

const checksumCacheSize = 64

// extracted is what reading one experiment's output produced.
type extracted struct {
	checksums *checksum.Checksums
	equal     checksum.EqualFunc
}

// checksumCache extracts each experiment's checksums once, however many pairs it appears in.
type checksumCache struct {
	schemaVersion string
	cache         *lru.Cache
	// One lock per directory, so concurrent pairs sharing an experiment don't both extract it.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChecksumCache(schemaVersion string) (*checksumCache, error) {
	cache, err := lru.New(checksumCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &checksumCache{
		schemaVersion: schemaVersion,
		cache:         cache,
		locks:         make(map[string]*sync.Mutex),
	}, nil
}

func (c *checksumCache) get(controlPath string) (extracted, error) {
	c.mu.Lock()
	lock, ok := c.locks[controlPath]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[controlPath] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	if v, ok := c.cache.Get(controlPath); ok {
		return v.(extracted), nil
	}

	labPath, err := experiment.LabPathFromControl(controlPath)
	if err != nil {
		return extracted{}, err
	}
	exp := experiment.New(controlPath, labPath, experiment.WithDisablePayuRun(true))
	if err := exp.LoadModel(); err != nil {
		return extracted{}, err
	}
	checksums, err := exp.ExtractChecksums("", c.schemaVersion)
	if err != nil {
		return extracted{}, err
	}
	result := extracted{checksums: checksums, equal: exp.Model.Equal}
	c.cache.Add(controlPath, result)
	return result, nil
}

// Compare checks pairwise that existing experiments produced the same checksums in output000.
// Only fields present in both experiments are compared. Pairs are compared concurrently;
// every pair is reported, and the returned error is non-nil only if no comparison could start.
func (a *App) Compare(ctx *reprocontext.Context, dirs []string) (*Report, error) {
	cwd, err := a.Getwd()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	pairs, err := experiment.ExperimentPairs(dirs, cwd)
	if err != nil {
		return nil, err
	}
	cache, err := newChecksumCache(a.Params.SchemaVersion)
	if err != nil {
		return nil, err
	}

	report := &Report{RunId: util.NewRunId(), Cases: make([]junitreport.Case, len(pairs))}
	ctx = reprocontext.WithLogField(ctx, "run", report.RunId)
	g, gctx := reprocontext.ErrGroup(ctx)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			pairCtx := reprocontext.WithLogField(gctx, "pair", pair.String())
			report.Cases[i] = a.comparePair(pairCtx, cache, pair)
			return nil
		})
	}
	_ = g.Wait()

	builder := junitreport.NewBuilder("reprotest-compare", report.RunId, a.Clock)
	for _, c := range report.Cases {
		a.Metrics.RecordTestCase("pairwise", c.Outcome.String())
		builder.Add(c)
	}
	if a.Params.JUnitXml != "" {
		path, err := a.absPath(a.Params.JUnitXml)
		if err != nil {
			return nil, err
		}
		if err := builder.WriteFile(path); err != nil {
			return nil, err
		}
	}
	a.writeMetrics(ctx)
	return report, nil
}

func (a *App) comparePair(ctx *reprocontext.Context, cache *checksumCache, pair experiment.Pair) junitreport.Case {
	start := a.Clock.Now()
	c := junitreport.Case{
		Name:      fmt.Sprintf("test_pairwise_repro[%s]", pair),
		Classname: "reprotest.PairwiseReproducibility",
	}
	err := a.checkPair(cache, pair)
	c.Duration = a.Clock.Since(start)
	classify(ctx, &c, err)
	return c
}

func (a *App) checkPair(cache *checksumCache, pair experiment.Pair) error {
	first, err := cache.get(pair.First)
	if err != nil {
		return err
	}
	second, err := cache.get(pair.Second)
	if err != nil {
		return err
	}
	diff := checksum.Diff(first.checksums, second.checksums, checksum.Options{Equal: first.equal})
	a.Metrics.RecordChecksumFields(diff.Compared-len(diff.Mismatches), len(diff.Mismatches))
	if !diff.Match() {
		return &testFailure{
			message: fmt.Sprintf("Checksums do not match for %s", pair),
			detail:  diff.Err().Error(),
		}
	}
	return nil
}
