package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/reprotest/joblog"
	"github.com/armadaproject/reprotest/internal/reprotest/shell"
	"github.com/armadaproject/reprotest/internal/reprotest/shell/shelltest"
)

const jobId = joblog.JobId("137768371.gadi-pbs")

var qstatArgv = []string{"qstat", "-x", "-f", string(jobId)}

func qstatOutput(state string) string {
	return "Job Id: 137768371.gadi-pbs\n" +
		"    Job_Name = pre-industrial\n" +
		"    Job_Owner = abc123@gadi-login-01.gadi.nci.org.au\n" +
		"    job_state = " + state + "\n" +
		"    queue = normal-exec\n" +
		"    Exit_status = 0\n"
}

func TestJobStateTerminal(t *testing.T) {
	tests := map[JobState]bool{
		StateQueued:   false,
		StateRunning:  false,
		StateExiting:  false,
		StateHeld:     false,
		StateFinished: true,
		StateExpired:  true,
		StateUnknown:  true,
	}
	for state, want := range tests {
		assert.Equal(t, want, state.Terminal(), string(state))
	}
}

func TestState(t *testing.T) {
	tests := map[string]struct {
		stdout  string
		err     error
		stderr  string
		want    JobState
		wantErr bool
	}{
		"queued":   {stdout: qstatOutput("Q"), want: StateQueued},
		"finished": {stdout: qstatOutput("F"), want: StateFinished},
		"unknown job": {
			err:  &shell.ExitError{Command: "qstat", ExitCode: 153, Stderr: "qstat: Unknown Job Id 137768371.gadi-pbs"},
			want: StateUnknown,
		},
		"qstat failure": {
			err:     &shell.ExitError{Command: "qstat", ExitCode: 1, Stderr: "qstat: cannot connect to server"},
			wantErr: true,
		},
		"no job_state": {stdout: "Job Id: 137768371.gadi-pbs\n", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			runner := shelltest.NewFakeRunner().Add(qstatArgv, tc.stdout, tc.err)
			q := NewQstat([]string{"qstat"}, WithRunner(runner))
			got, err := q.State(reprocontext.Background(), jobId)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWait(t *testing.T) {
	runner := shelltest.NewFakeRunner().
		Add(qstatArgv, qstatOutput("Q"), nil).
		Add(qstatArgv, qstatOutput("R"), nil).
		Add(qstatArgv, qstatOutput("E"), nil).
		Add(qstatArgv, qstatOutput("F"), nil)
	q := NewQstat([]string{"qstat"}, WithRunner(runner), WithPollInterval(time.Millisecond))

	require.NoError(t, q.Wait(reprocontext.Background(), jobId))
	assert.Len(t, runner.Calls, 4)
}

func TestWait_Timeout(t *testing.T) {
	runner := shelltest.NewFakeRunner().Add(qstatArgv, qstatOutput("R"), nil)
	q := NewQstat([]string{"qstat"}, WithRunner(runner), WithPollInterval(time.Millisecond), WithTimeout(5*time.Millisecond))

	err := q.Wait(reprocontext.Background(), jobId)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job 137768371.gadi-pbs is still in state R")
	assert.Len(t, runner.Calls, 6)
}

func TestWait_QstatError(t *testing.T) {
	runner := shelltest.NewFakeRunner().Add(qstatArgv, "", &shell.ExitError{Command: "qstat", ExitCode: 2})
	q := NewQstat([]string{"qstat"}, WithRunner(runner), WithPollInterval(time.Millisecond))

	err := q.Wait(reprocontext.Background(), jobId)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error querying state of job 137768371.gadi-pbs")
	assert.Len(t, runner.Calls, 1)
}

func TestWait_Cancelled(t *testing.T) {
	runner := shelltest.NewFakeRunner().Add(qstatArgv, qstatOutput("Q"), nil)
	q := NewQstat([]string{"qstat"}, WithRunner(runner), WithPollInterval(time.Hour))

	ctx, cancel := reprocontext.WithCancel(reprocontext.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := q.Wait(ctx, jobId)
	assert.ErrorIs(t, err, context.Canceled)
}
