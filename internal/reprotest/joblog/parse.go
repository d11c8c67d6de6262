package joblog

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/reprotest/internal/common/reproerrors"
)

// SubmittedJobs are the jobs a payu run job submitted before exiting. Either may be nil.
type SubmittedJobs struct {
	RunId     *JobId
	CollateId *JobId
}

// ParseRunId returns the first job id line of the output of a payu run submission.
func ParseRunId(stdout string) (JobId, error) {
	for _, line := range Scan(stdout) {
		if line.Class == JobIdLine {
			return JobId(line.Text), nil
		}
	}
	return "", errors.WithStack(&reproerrors.ErrNotFound{What: "job id", Where: "payu run output"})
}

// ParseJobIds returns every job id line in file order.
func ParseJobIds(stdout string) []JobId {
	var ids []JobId
	for _, line := range Scan(stdout) {
		if line.Class == JobIdLine {
			ids = append(ids, JobId(line.Text))
		}
	}
	return ids
}

// ParseSubmittedJobs binds the job ids in a job's stdout to the payu-run and payu-collate
// submissions it made.
//
// qsub prints each id after its command line, but payu's own output is buffered, so ids do not
// reliably follow their marker. Instead each distinct marker requires one id, and the last ids in
// the log are bound in marker order. Ids before the first marker, and any beyond the last N,
// belong to other commands and are ignored.
func ParseSubmittedJobs(stdout string) (SubmittedJobs, error) {
	var roles []JobRole
	var ids []JobId
	for _, line := range Scan(stdout) {
		switch line.Class {
		case SubmitMarker:
			if !slices.Contains(roles, line.Role) {
				roles = append(roles, line.Role)
			}
		case JobIdLine:
			if len(roles) > 0 {
				ids = append(ids, JobId(line.Text))
			}
		}
	}
	if len(roles) == 0 {
		return SubmittedJobs{}, nil
	}
	if len(ids) < len(roles) {
		return SubmittedJobs{}, errors.WithStack(&reproerrors.ErrInsufficientJobIds{
			Expected: len(roles),
			Found:    len(ids),
		})
	}

	var jobs SubmittedJobs
	bound := ids[len(ids)-len(roles):]
	for i, role := range roles {
		id := bound[i]
		switch role {
		case RunJob:
			jobs.RunId = &id
		case CollateJob:
			jobs.CollateId = &id
		}
	}
	return jobs, nil
}

// ParseExitStatus returns the last exit status recorded in a job's stdout.
// A log without one is taken to have succeeded.
func ParseExitStatus(stdout string) int {
	status := 0
	for _, line := range Scan(stdout) {
		if line.Class == ExitStatusLine {
			status = line.ExitStatus
		}
	}
	return status
}
