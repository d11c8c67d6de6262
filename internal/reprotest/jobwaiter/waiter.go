// Package jobwaiter follows the chain of PBS jobs started by a payu run until every job in it
// has finished, collecting the output files of each.
//
// A payu run job may submit a collate job and the next run job before exiting; those jobs may
// in turn submit more. The waiter learns about them only by reading each finished job's stdout,
// so jobs are discovered and waited on one at a time, in the order their submissions are found.
package jobwaiter

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/common/reproerrors"
	"github.com/armadaproject/reprotest/internal/reprotest/joblog"
	"github.com/armadaproject/reprotest/internal/reprotest/metrics"
)

// WaitFunc blocks until the scheduler reports jobId terminal.
// It is called exactly once per job and must not keep state between calls.
type WaitFunc func(ctx *reprocontext.Context, jobId joblog.JobId) error

type Option func(w *Waiter)

// Waiter runs the wait chain for one starting job at a time. A Waiter may be shared between
// goroutines; each call to Wait keeps its own queue.
type Waiter struct {
	wait    WaitFunc
	clock   clock.PassiveClock
	metrics *metrics.Metrics
}

func New(wait WaitFunc, opts ...Option) *Waiter {
	w := &Waiter{
		wait:  wait,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func WithClock(c clock.PassiveClock) Option {
	return func(w *Waiter) {
		w.clock = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Waiter) {
		w.metrics = m
	}
}

// WaitForJobs waits for startJobId and every job it chains to, and returns their output files
// in discovery order. See Waiter.Wait.
func WaitForJobs(ctx *reprocontext.Context, searchDir string, startJobId joblog.JobId, wait WaitFunc) ([]OutputFiles, error) {
	return New(wait).Wait(ctx, searchDir, startJobId)
}

// Wait waits for startJobId, then for the jobs its stdout says it submitted (collate first),
// and so on until no new submissions are found. Output files of every job are returned in the
// order the jobs were waited on.
//
// Any failure aborts the chain: a job whose stdout file can't be found unambiguously, a
// nonzero exit status, or a log naming more submissions than it has job ids. Nothing is returned
// alongside the error. No timeout is applied here; wait must bound itself if that's required.
func (w *Waiter) Wait(ctx *reprocontext.Context, searchDir string, startJobId joblog.JobId) ([]OutputFiles, error) {
	ctx = reprocontext.WithLogFields(ctx, logrus.Fields{"chainStart": startJobId, "searchDir": searchDir})
	var result []OutputFiles
	queue := []joblog.JobId{startJobId}
	seen := map[joblog.JobId]bool{startJobId: true}

	for len(queue) > 0 {
		jobId := queue[0]
		queue = queue[1:]
		jobCtx := reprocontext.WithLogField(ctx, "jobId", jobId)

		files, jobs, err := w.waitForJob(jobCtx, searchDir, jobId)
		if err != nil {
			return nil, err
		}
		result = append(result, files)

		for _, next := range []*joblog.JobId{jobs.CollateId, jobs.RunId} {
			if next == nil || seen[*next] {
				continue
			}
			seen[*next] = true
			queue = append(queue, *next)
			jobCtx.Log.Debugf("Found chained job %s", *next)
		}
	}
	return result, nil
}

func (w *Waiter) waitForJob(ctx *reprocontext.Context, searchDir string, jobId joblog.JobId) (OutputFiles, joblog.SubmittedJobs, error) {
	ctx.Log.Infof("Waiting for job %s", jobId)
	start := w.clock.Now()
	if err := w.wait(ctx, jobId); err != nil {
		w.metrics.RecordJob("error", w.clock.Since(start))
		return OutputFiles{}, joblog.SubmittedJobs{}, errors.WithMessagef(err, "error waiting for job %s", jobId)
	}
	waited := w.clock.Since(start)

	files, err := FindOutputFiles(searchDir, jobId)
	if err != nil {
		w.metrics.RecordJob("error", waited)
		return OutputFiles{}, joblog.SubmittedJobs{}, err
	}
	stdout, err := os.ReadFile(files.Stdout)
	if err != nil {
		w.metrics.RecordJob("error", waited)
		return OutputFiles{}, joblog.SubmittedJobs{}, errors.WithStack(err)
	}

	if status := joblog.ParseExitStatus(string(stdout)); status != 0 {
		w.metrics.RecordJob("failed", waited)
		ctx.Log.WithFields(logrus.Fields{"stdout": files.Stdout, "stderr": files.Stderr}).Errorf("Job %s exited with status %d", jobId, status)
		return OutputFiles{}, joblog.SubmittedJobs{}, errors.WithStack(&reproerrors.ErrJobFailed{
			JobId:      string(jobId),
			ExitStatus: status,
		})
	}

	jobs, err := joblog.ParseSubmittedJobs(string(stdout))
	if err != nil {
		w.metrics.RecordJob("error", waited)
		return OutputFiles{}, joblog.SubmittedJobs{}, errors.WithMessagef(err, "error parsing %s", files.Stdout)
	}
	w.metrics.RecordJob("succeeded", waited)
	ctx.Log.Infof("Job %s finished after %s", jobId, waited.Round(time.Second))
	return files, jobs, nil
}
