// Package shell runs the external tools the harness drives: payu and the PBS client commands.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Result is the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs argv in dir. A command that ran but exited nonzero returns its Result together with
// an *ExitError, so callers can inspect what it printed.
type Runner interface {
	Run(ctx context.Context, dir string, argv []string) (Result, error)
}

type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (err *ExitError) Error() string {
	s := fmt.Sprintf("command '%s' exited with code %d", err.Command, err.ExitCode)
	if msg := strings.TrimSpace(err.Stderr); msg != "" {
		s += ": " + msg
	}
	return s
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("no command given")
	}
	log.Debugf("Executing '%s' with arguments %v in %s", argv[0], argv[1:], dir)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, errors.WithStack(&ExitError{
				Command:  strings.Join(argv, " "),
				ExitCode: result.ExitCode,
				Stderr:   result.Stderr,
			})
		}
		return result, errors.Wrapf(err, "unable to exec '%s'", argv[0])
	}
	return result, nil
}

// Split parses a configured command such as "qstat" or "/apps/payu/1.1/bin/payu --verbose" into argv.
func Split(command string) ([]string, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' into exec-able command", command)
	}
	if len(argv) == 0 {
		return nil, errors.Errorf("could not parse '%s' into exec-able command: no command given", command)
	}
	return argv, nil
}
