// Package command runs external programs (the scheduler and grid clients,
// the framework executables) behind a small interface so callers can be
// tested with fakes.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	return r.Stdout + r.Stderr
}

// Runner executes name with args in dir. A non-zero exit status is an error;
// the captured output is returned in both cases.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// ExecRunner is the os/exec implementation of Runner.
type ExecRunner struct {
	// Env, when non-nil, replaces the environment of the child process.
	Env []string
}

// Run starts the process and waits for it to exit or for ctx to end.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running command.", "cmd", name, "args", args, "dir", dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if r.Env != nil {
		cmd.Env = r.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		return res, &Error{Name: name, Args: args, Output: msg, Err: err}
	}
	return res, nil
}

// Error describes a command that could not be started or exited non-zero.
type Error struct {
	Name   string
	Args   []string
	Output string
	Err    error
}

func (e *Error) Error() string {
	line := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", line, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", line, e.Err, e.Output)
}

func (e *Error) Unwrap() error { return e.Err }
