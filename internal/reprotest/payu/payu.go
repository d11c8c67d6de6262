// Package payu drives the payu workflow tool inside an experiment's control directory.
package payu

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/reprotest/shell"
)

type Option func(c *Client)

// Client runs payu subcommands. The base command is configurable so a specific payu
// installation or module wrapper can be used.
type Client struct {
	command []string
	runner  shell.Runner
}

func New(command []string, opts ...Option) *Client {
	c := &Client{
		command: command,
		runner:  shell.ExecRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithRunner(runner shell.Runner) Option {
	return func(c *Client) {
		c.runner = runner
	}
}

// Sweep removes the work directory of the experiment in controlPath. A hard sweep also
// removes its archive.
func (c *Client) Sweep(ctx *reprocontext.Context, controlPath string, hard bool) error {
	args := []string{"sweep"}
	if hard {
		args = append(args, "--hard")
	}
	_, err := c.run(ctx, controlPath, args...)
	return err
}

// Run submits nRuns consecutive runs and returns payu's stdout, which names the submitted job.
func (c *Client) Run(ctx *reprocontext.Context, controlPath string, nRuns int) (string, error) {
	if nRuns < 1 {
		return "", errors.Errorf("number of runs must be positive, got %d", nRuns)
	}
	return c.run(ctx, controlPath, "run", "-n", strconv.Itoa(nRuns))
}

func (c *Client) run(ctx *reprocontext.Context, dir string, args ...string) (string, error) {
	argv := append(append([]string{}, c.command...), args...)
	ctx.Log.Debugf("Running %v", argv)
	result, err := c.runner.Run(ctx, dir, argv)
	if err != nil {
		return result.Stdout, errors.WithMessagef(err, "error running payu %s in %s", args[0], dir)
	}
	return result.Stdout, nil
}
