package crab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/specialistvlad/tkalgrid/internal/command"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
)

// Errors classified from the client's output.
var (
	ErrAlreadyExists = errors.New("task already exists")
	ErrCacheNotFound = errors.New("request cache not found")
	ErrTaskNotFound  = errors.New("task not found")
	ErrNoStatus      = errors.New("no job status in client output")
)

// State is the grid state of a job.
type State string

const (
	Pending  State = "pending"
	Running  State = "running"
	Finished State = "finished"
	Failed   State = "failed"
)

// ParseState keeps every state the client reports. An empty state is
// pending.
func ParseState(s string) State {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "unsubmitted" || s == "idle" {
		return Pending
	}
	return State(s)
}

// Known reports whether s is one of the states the monitor acts on.
func (s State) Known() bool {
	switch s {
	case Pending, Running, Finished, Failed:
		return true
	}
	return false
}

// JobStatus is the status of one job of a task.
type JobStatus struct {
	State State `json:"State"`
	// Error holds the exit code first, followed by a description.
	Error []any `json:"Error,omitempty"`
}

// ErrorCode returns the job's exit code, or "-1" when none was reported.
func (j JobStatus) ErrorCode() string {
	if len(j.Error) == 0 {
		return "-1"
	}
	switch v := j.Error[0].(type) {
	case float64:
		return fmt.Sprintf("%d", int64(v))
	default:
		return fmt.Sprint(v)
	}
}

// Status is the result of a status query, keyed by job id.
type Status struct {
	Jobs map[string]JobStatus
}

// Job returns the task's only job, or a pending placeholder when the task
// has not created any job yet.
func (s *Status) Job() JobStatus {
	if len(s.Jobs) == 0 {
		return JobStatus{State: Pending}
	}
	ids := make([]string, 0, len(s.Jobs))
	for id := range s.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	j := s.Jobs[ids[0]]
	j.State = ParseState(string(j.State))
	return j
}

// CLI drives the crab command line client.
type CLI struct {
	// Bin is the client executable.
	Bin    string
	runner command.Runner
}

// NewCLI creates a client that runs bin through runner.
func NewCLI(runner command.Runner, bin string) *CLI {
	if bin == "" {
		bin = "crab"
	}
	return &CLI{Bin: bin, runner: runner}
}

// Submit submits the task described by cfgFile.
func (c *CLI) Submit(ctx context.Context, cfgFile string) error {
	_, err := c.run(ctx, filepath.Dir(cfgFile), "submit", "-c", cfgFile)
	return err
}

// Status queries the task in requestDir.
func (c *CLI) Status(ctx context.Context, requestDir string) (*Status, error) {
	out, err := c.run(ctx, filepath.Dir(requestDir), "status", "-d", requestDir, "--json")
	if err != nil {
		return nil, err
	}
	return ParseStatus(out)
}

// Resubmit resubmits the failed jobs of the task in requestDir.
func (c *CLI) Resubmit(ctx context.Context, requestDir string) error {
	_, err := c.run(ctx, filepath.Dir(requestDir), "resubmit", "-d", requestDir)
	return err
}

// GetOutput returns the logical file names of the task's outputs. The files
// are not copied.
func (c *CLI) GetOutput(ctx context.Context, requestDir string) ([]string, error) {
	out, err := c.run(ctx, filepath.Dir(requestDir), "getoutput", "-d", requestDir, "--dump")
	if err != nil {
		return nil, err
	}
	return ParseLFNs(out), nil
}

func (c *CLI) run(ctx context.Context, dir, sub string, args ...string) (string, error) {
	logger := ctxlog.FromContext(ctx)
	res, err := c.runner.Run(ctx, dir, c.Bin, append([]string{sub}, args...)...)
	if err != nil {
		if class := classify(res.Combined()); class != nil {
			err = fmt.Errorf("%w: %w", class, err)
		}
		logger.Debug("Grid client command failed.", "command", sub, "error", err)
		return res.Stdout, fmt.Errorf("crab %s: %w", sub, err)
	}
	return res.Stdout, nil
}

func classify(out string) error {
	switch {
	case strings.Contains(out, "already exists"):
		return ErrAlreadyExists
	case strings.Contains(out, "CachefileNotFound"), strings.Contains(out, "Cannot find .requestcache"):
		return ErrCacheNotFound
	case strings.Contains(out, "TaskNotFound"), strings.Contains(out, "Cannot find task"),
		strings.Contains(out, "not a valid CRAB project directory"):
		return ErrTaskNotFound
	}
	return nil
}

// ParseStatus reads the JSON job map the client prints among its status
// output.
func ParseStatus(out string) (*Status, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		jobs := map[string]JobStatus{}
		if err := json.Unmarshal([]byte(line), &jobs); err != nil {
			return nil, fmt.Errorf("decode job status: %w", err)
		}
		return &Status{Jobs: jobs}, nil
	}
	if strings.Contains(out, "Status on the scheduler") || strings.Contains(out, "Task status") {
		// Submitted but no job has been created yet.
		return &Status{Jobs: map[string]JobStatus{}}, nil
	}
	return nil, ErrNoStatus
}

// ParseLFNs returns the values of every "LFN:" line of getoutput's dump.
func ParseLFNs(out string) []string {
	var lfns []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "LFN:"); ok {
			if lfn := strings.TrimSpace(rest); lfn != "" {
				lfns = append(lfns, lfn)
			}
		}
	}
	return lfns
}
