package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/specialistvlad/tkalgrid/internal/command"
)

// Call is one recorded invocation of a FakeRunner.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// Line returns the command line of the call joined by spaces.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// FakeRunner is a command.Runner that records calls and answers them with
// Handle. A nil Handle succeeds with empty output.
type FakeRunner struct {
	Handle func(ctx context.Context, c Call) (command.Result, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements command.Runner.
func (f *FakeRunner) Run(ctx context.Context, dir, name string, args ...string) (command.Result, error) {
	c := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.Handle == nil {
		return command.Result{}, nil
	}
	return f.Handle(ctx, c)
}

// Calls returns a copy of every call made so far.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns the command line of every call made so far.
func (f *FakeRunner) Lines() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Line())
	}
	return out
}
