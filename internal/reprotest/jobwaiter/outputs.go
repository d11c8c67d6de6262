package jobwaiter

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"

	"github.com/armadaproject/reprotest/internal/common/reproerrors"
	"github.com/armadaproject/reprotest/internal/reprotest/joblog"
)

// OutputFiles are the stdout and stderr files PBS writes for a job, named
// <job name>.o<number> and <job name>.e<number>.
type OutputFiles struct {
	JobId  joblog.JobId
	Stdout string
	Stderr string
}

// FindOutputFiles locates the output of jobId in searchDir. Exactly one stdout file must exist.
func FindOutputFiles(searchDir string, jobId joblog.JobId) (OutputFiles, error) {
	number := jobId.Number()
	matches, err := zglob.Glob(filepath.Join(searchDir, "*.o"+number))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return OutputFiles{}, errors.WithStack(err)
	}
	if len(matches) != 1 {
		return OutputFiles{}, errors.WithStack(&reproerrors.ErrAmbiguousOutput{
			JobId: string(jobId),
			Found: len(matches),
		})
	}
	stdout := matches[0]
	prefix := strings.TrimSuffix(filepath.Base(stdout), ".o"+number)
	return OutputFiles{
		JobId:  jobId,
		Stdout: stdout,
		Stderr: filepath.Join(filepath.Dir(stdout), prefix+".e"+number),
	}, nil
}
