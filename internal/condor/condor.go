// Package condor submits work to an HTCondor scheduler.
package condor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/specialistvlad/tkalgrid/internal/command"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
)

const (
	submitDAGCmd = "condor_submit_dag"
	submitCmd    = "condor_submit"
)

// ErrNoClusterID is returned when the scheduler accepted a submission but
// its output did not name the cluster.
var ErrNoClusterID = errors.New("no cluster id in scheduler output")

var clusterRe = regexp.MustCompile(`submitted to cluster (\d+)\.`)

// Submitter wraps the HTCondor command line tools.
type Submitter struct {
	runner command.Runner
}

// New creates a Submitter that runs commands through runner.
func New(runner command.Runner) *Submitter {
	return &Submitter{runner: runner}
}

// SubmitDAG submits dagFile, replacing any files left by an earlier
// submission of the same DAG, and returns the DAGMan cluster id.
func (s *Submitter) SubmitDAG(ctx context.Context, dagFile string) (string, error) {
	return s.submit(ctx, submitDAGCmd, "-force", dagFile)
}

// Submit submits a single job description and returns its cluster id.
func (s *Submitter) Submit(ctx context.Context, submitFile string) (string, error) {
	return s.submit(ctx, submitCmd, submitFile)
}

func (s *Submitter) submit(ctx context.Context, name string, args ...string) (string, error) {
	logger := ctxlog.FromContext(ctx)
	file := args[len(args)-1]

	res, err := s.runner.Run(ctx, filepath.Dir(file), name, args...)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", file, err)
	}
	id, err := ParseClusterID(res.Stdout)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", file, err)
	}
	logger.Info("🚀 Submitted to HTCondor.", "file", file, "cluster", id)
	return id, nil
}

// ParseClusterID extracts N from the "submitted to cluster N." line printed
// by both submit tools.
func ParseClusterID(out string) (string, error) {
	m := clusterRe.FindStringSubmatch(out)
	if m == nil {
		return "", ErrNoClusterID
	}
	return m[1], nil
}
