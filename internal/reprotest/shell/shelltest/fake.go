// Package shelltest provides a shell.Runner that replays canned results instead of running commands.
package shelltest

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/armadaproject/reprotest/internal/reprotest/shell"
)

// FakeRunner replays canned results for commands, keyed by the joined argv.
type FakeRunner struct {
	mu sync.Mutex
	// Responses for each command, consumed in order. The last response is repeated.
	Responses map[string][]FakeResponse
	// Calls records each command run, with its working directory.
	Calls []FakeCall
	// OnRun, if set, is invoked before a response is returned, e.g. to create output files.
	OnRun func(dir string, argv []string)
}

type FakeResponse struct {
	Result shell.Result
	Err    error
}

type FakeCall struct {
	Dir  string
	Argv []string
}

var _ shell.Runner = (*FakeRunner)(nil)

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Responses: make(map[string][]FakeResponse)}
}

// Add queues a response for the command given by argv.
func (f *FakeRunner) Add(argv []string, stdout string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.Join(argv, " ")
	f.Responses[key] = append(f.Responses[key], FakeResponse{Result: shell.Result{Stdout: stdout}, Err: err})
	return f
}

func (f *FakeRunner) Run(_ context.Context, dir string, argv []string) (shell.Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, FakeCall{Dir: dir, Argv: argv})
	key := strings.Join(argv, " ")
	responses, ok := f.Responses[key]
	var response FakeResponse
	if ok && len(responses) > 0 {
		response = responses[0]
		if len(responses) > 1 {
			f.Responses[key] = responses[1:]
		}
	}
	onRun := f.OnRun
	f.mu.Unlock()

	if onRun != nil {
		onRun(dir, argv)
	}
	if !ok {
		return shell.Result{}, errors.Errorf("unexpected command '%s'", key)
	}
	return response.Result, response.Err
}

// Commands returns the joined argv of every call so far.
func (f *FakeRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = strings.Join(c.Argv, " ")
	}
	return out
}
