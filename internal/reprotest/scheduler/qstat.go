// Package scheduler asks PBS whether jobs have finished.
package scheduler

import (
	"bufio"
	"math"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/reprotest/joblog"
	"github.com/armadaproject/reprotest/internal/reprotest/shell"
)

// JobState is the single-letter PBS job state, e.g. "Q", "R" or "F".
type JobState string

const (
	StateQueued   JobState = "Q"
	StateRunning  JobState = "R"
	StateExiting  JobState = "E"
	StateHeld     JobState = "H"
	StateFinished JobState = "F"
	// StateExpired is reported for finished subjobs of an array job.
	StateExpired JobState = "X"
	// StateUnknown is used when the server no longer knows the job, i.e. its history was purged.
	StateUnknown JobState = "?"
)

// Terminal reports whether output files for the job are complete.
// Jobs in state E are still copying their output back.
func (s JobState) Terminal() bool {
	return s == StateFinished || s == StateExpired || s == StateUnknown
}

const (
	DefaultPollInterval = 30 * time.Second
	unknownJobMessage   = "Unknown Job Id"
)

type Option func(q *Qstat)

// Qstat polls `qstat -x -f` until a job is terminal. It keeps no per-job state, so a single
// Qstat may wait for jobs of several experiments concurrently.
type Qstat struct {
	command      []string
	runner       shell.Runner
	pollInterval time.Duration
	timeout      time.Duration
	clock        clock.PassiveClock
}

func NewQstat(command []string, opts ...Option) *Qstat {
	q := &Qstat{
		command:      command,
		runner:       shell.ExecRunner{},
		pollInterval: DefaultPollInterval,
		clock:        clock.RealClock{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func WithRunner(runner shell.Runner) Option {
	return func(q *Qstat) {
		q.runner = runner
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(q *Qstat) {
		q.pollInterval = interval
	}
}

// WithTimeout bounds each call to Wait. Zero, the default, waits indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(q *Qstat) {
		q.timeout = timeout
	}
}

func WithClock(c clock.PassiveClock) Option {
	return func(q *Qstat) {
		q.clock = c
	}
}

// ErrStillRunning is returned by Wait when the timeout expires before the job finishes.
type ErrStillRunning struct {
	JobId joblog.JobId
	State JobState
}

func (err *ErrStillRunning) Error() string {
	return "job " + string(err.JobId) + " is still in state " + string(err.State)
}

// State returns the current state of jobId.
func (q *Qstat) State(ctx *reprocontext.Context, jobId joblog.JobId) (JobState, error) {
	argv := append(append([]string{}, q.command...), "-x", "-f", string(jobId))
	result, err := q.runner.Run(ctx, "", argv)
	if err != nil {
		if strings.Contains(result.Stderr, unknownJobMessage) || strings.Contains(err.Error(), unknownJobMessage) {
			return StateUnknown, nil
		}
		return "", errors.WithMessagef(err, "error querying state of job %s", jobId)
	}
	return parseJobState(result.Stdout, jobId)
}

// Wait polls the state of jobId until it is terminal, ctx is cancelled or the timeout expires.
func (q *Qstat) Wait(ctx *reprocontext.Context, jobId joblog.JobId) error {
	start := q.clock.Now()
	err := retry.Do(
		func() error {
			state, err := q.State(ctx, jobId)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if !state.Terminal() {
				return &ErrStillRunning{JobId: jobId, State: state}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(q.attempts()),
		retry.Delay(q.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			ctx.Log.Debugf("%s; checking again in %s", err, q.pollInterval)
		}),
	)
	if err != nil {
		var running *ErrStillRunning
		if errors.As(err, &running) {
			return errors.WithMessagef(err, "timed out after %s", q.clock.Since(start).Round(time.Second))
		}
		return errors.WithStack(err)
	}
	return nil
}

func (q *Qstat) attempts() uint {
	if q.timeout <= 0 || q.pollInterval <= 0 {
		return math.MaxUint32
	}
	return uint(q.timeout/q.pollInterval) + 1
}

// parseJobState extracts "job_state = F" from full qstat output.
func parseJobState(stdout string, jobId joblog.JobId) (JobState, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), "=")
		if found && strings.TrimSpace(key) == "job_state" {
			return JobState(strings.TrimSpace(value)), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.WithStack(err)
	}
	return "", errors.Errorf("no job_state in qstat output for job %s", jobId)
}
