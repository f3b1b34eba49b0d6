// Package monitor submits grid tasks and follows them until their output has
// been moved to its final location, resubmitting failed jobs on the way.
package monitor

import (
	"context"
	"io"
	"time"

	"github.com/specialistvlad/tkalgrid/internal/command"
	"github.com/specialistvlad/tkalgrid/internal/crab"
	"github.com/specialistvlad/tkalgrid/internal/statusstore"
)

// Default poll intervals of the two monitoring flows.
const (
	BatchInterval  = 60 * time.Second
	SingleInterval = 30 * time.Second
)

// Client is the subset of the grid client the monitor uses.
type Client interface {
	Submit(ctx context.Context, cfgFile string) error
	Status(ctx context.Context, requestDir string) (*crab.Status, error)
	Resubmit(ctx context.Context, requestDir string) error
	GetOutput(ctx context.Context, requestDir string) ([]string, error)
}

// Task is one grid task, identified by its job name and directory.
type Task struct {
	Name   string
	Dir    string
	Config *crab.Config
}

// Report is the outcome of one poll of a task.
type Report struct {
	Name    string
	State   crab.State
	Message string
	// Output is the final location of the task's output file once it has
	// been copied.
	Output string
}

// Options tunes a Monitor. Zero values select the defaults.
type Options struct {
	// Interval is the pause between polling rounds.
	Interval time.Duration
	// Workers bounds the number of tasks polled at the same time.
	Workers int
	// EOSPrefix is the mount point logical file names are resolved against.
	EOSPrefix string
	// Python flattens framework configs in script mode.
	Python string
	// OutputRetries bounds the getoutput attempts for a finished task.
	OutputRetries int
	// OutputBackoff is the pause between getoutput attempts.
	OutputBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = BatchInterval
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.EOSPrefix == "" {
		o.EOSPrefix = "/eos/cms"
	}
	if o.Python == "" {
		o.Python = "python3"
	}
	if o.OutputRetries < 1 {
		o.OutputRetries = 5
	}
	if o.OutputBackoff <= 0 {
		o.OutputBackoff = 10 * time.Second
	}
	return o
}

// Monitor drives grid tasks through their lifecycle.
type Monitor struct {
	client Client
	runner command.Runner
	store  *statusstore.Store
	out    io.Writer
	opts   Options
	now    func() time.Time
}

// New creates a Monitor. Status lines are written to out; the latest report
// of each task is kept in store.
func New(client Client, runner command.Runner, store *statusstore.Store, out io.Writer, opts Options) *Monitor {
	return &Monitor{
		client: client,
		runner: runner,
		store:  store,
		out:    out,
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
