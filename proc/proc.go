package proc

// Package proc is the structured process-invocation layer. Builds and
// benchmarks are opaque external commands; their exit status, captured
// output, and elapsed time are the whole observable result.

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Spec describes one command invocation.
type Spec struct {
	Name string
	Args []string
	// Working directory; empty inherits the orchestrator's
	Dir string
	// Environment for the child process; nil inherits the orchestrator's.
	// The parent environment is never mutated.
	Env []string
	// Wall-clock bound; zero means unbounded
	Timeout time.Duration
}

// Result is the outcome of one invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Runner runs one command synchronously to completion. The orchestrator
// owns the whole machine during a campaign, so implementations never
// overlap invocations.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

type execRunner struct{}

// NewRunner returns the os/exec backed Runner.
func NewRunner() Runner {
	return execRunner{}
}

// Run executes the command. A non-zero exit or a timeout is reported in
// the Result with a nil error; an error means the command could not be
// run at all.
func (execRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}
