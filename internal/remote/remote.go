// Package remote defines the command-execution contract the sweep is
// written against, plus the two transports used in production: an ssh
// subprocess for remote hosts and direct exec for controller-local
// commands. Anything satisfying Executor (including test fakes) is
// interchangeable.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

// Result is the outcome of a command that ran to completion on the
// target, whether or not it exited zero.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout and stderr concatenated, which is how the
// bandwidth tool's report is consumed.
func (r Result) Output() string {
	return strings.TrimSpace(r.Stdout + "\n" + r.Stderr)
}

// Executor runs a command string on the named host. The context bounds
// the whole call; a non-nil error means the command could not be run or
// did not complete (transport failure, timeout), not that it exited
// nonzero.
type Executor interface {
	Run(ctx context.Context, host, command string) (Result, error)
}

// SSH executes commands over an ssh subprocess in batch mode.
type SSH struct {
	options []string
}

// NewSSH returns an SSH executor. extraOptions is a shell-style string of
// additional ssh arguments (e.g. "-i /path/key -p 2222") and may be empty.
func NewSSH(extraOptions string) (*SSH, error) {
	options, err := shlex.Split(extraOptions)
	if err != nil {
		return nil, fmt.Errorf("invalid ssh options %q: %w", extraOptions, err)
	}
	return &SSH{options: options}, nil
}

func (s *SSH) args(host, command string) []string {
	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
	}
	args = append(args, s.options...)
	return append(args, host, command)
}

// Run executes command on host via ssh.
func (s *SSH) Run(ctx context.Context, host, command string) (Result, error) {
	return run(ctx, "ssh", s.args(host, command)...)
}

// Local executes command strings directly on the controller host. The
// host argument is ignored.
type Local struct{}

// Run shlex-splits command and executes it locally.
func (Local) Run(ctx context.Context, _, command string) (Result, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return Result{}, fmt.Errorf("invalid command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return Result{}, errors.New("empty command")
	}
	return run(ctx, argv[0], argv[1:]...)
}

func run(ctx context.Context, name string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		// Prefer the context error so callers can tell a timeout from a
		// remote nonzero exit.
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// ShellQuote quotes s for safe inclusion in a shell command line, the
// same way shlex.quote does.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'`$\\!*?[](){}<>|&;~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
