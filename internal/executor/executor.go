// Package executor runs a validation directory on this machine: every job's
// run script is started by a bounded pool of workers as soon as all of its
// dependencies have finished.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/tkalgrid/internal/command"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/dag"
	"github.com/specialistvlad/tkalgrid/internal/generate"
	"github.com/specialistvlad/tkalgrid/internal/job"
	"github.com/specialistvlad/tkalgrid/internal/statusstore"
)

// Log files written into each job directory.
const (
	StdoutFile = "local.out"
	StderrFile = "local.err"
)

var errSkipped = errors.New("skipped")

type node struct {
	job        *job.Job
	dependents []*node
	depCount   atomic.Int32
	err        error
	skipOnce   sync.Once
}

// Executor runs the jobs of one graph.
type Executor struct {
	// Self is the path of this binary. Grid jobs are run through its
	// `crab job` command, exactly as their DAG node would.
	Self string

	nodes      []*node
	runner     command.Runner
	store      *statusstore.Store
	numWorkers int
	wg         sync.WaitGroup
}

// New prepares an executor for jobs, whose dependencies are described by g.
func New(jobs []*job.Job, g *dag.Graph, runner command.Runner, store *statusstore.Store, numWorkers int) (*Executor, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if g.Len() != len(jobs) {
		return nil, fmt.Errorf("graph has %d jobs but %d were given", g.Len(), len(jobs))
	}
	byName := make(map[string]*node, len(jobs))
	e := &Executor{runner: runner, store: store, numWorkers: numWorkers}
	for _, j := range jobs {
		n := &node{job: j}
		byName[j.Name] = n
		e.nodes = append(e.nodes, n)
	}
	for _, n := range e.nodes {
		deps, err := g.Dependencies(n.job.Name)
		if err != nil {
			return nil, err
		}
		n.depCount.Store(int32(len(deps)))
		dependents, err := g.Dependents(n.job.Name)
		if err != nil {
			return nil, err
		}
		for _, d := range dependents {
			dn, ok := byName[d]
			if !ok {
				return nil, fmt.Errorf("job %q has unknown dependent %q", n.job.Name, d)
			}
			n.dependents = append(n.dependents, dn)
		}
	}
	return e, nil
}

// Run executes every job and returns an error naming each job that failed,
// wrapping the first failure. Dependents of a failed job are skipped; jobs
// that do not depend on it keep running.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if len(e.nodes) == 0 {
		return nil
	}

	readyChan := make(chan *node, len(e.nodes))
	roots := 0
	for _, n := range e.nodes {
		e.store.Set(n.job.Name, statusstore.Entry{State: statusstore.Pending})
		if n.depCount.Load() == 0 {
			readyChan <- n
			roots++
		}
	}
	logger.Debug("Found all root jobs.", "count", roots)

	e.wg.Add(len(e.nodes))
	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	logger.Info("⏳ Waiting for all jobs to complete...", "jobs", len(e.nodes))
	e.wg.Wait()
	close(readyChan)

	var failed []string
	var rootCause error
	for _, n := range e.nodes {
		if n.err == nil || errors.Is(n.err, errSkipped) || errors.Is(n.err, context.Canceled) {
			continue
		}
		failed = append(failed, n.job.Name)
		if rootCause == nil {
			rootCause = n.err
		}
	}
	if rootCause != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("✅ All jobs completed.", "jobs", len(e.nodes))
	return nil
}

// skip marks n as not run and propagates to everything downstream of it.
func (e *Executor) skip(ctx context.Context, n *node, cause error) {
	n.skipOnce.Do(func() {
		n.err = cause
		e.store.Set(n.job.Name, statusstore.Entry{State: statusstore.Skipped, Message: cause.Error()})
		e.wg.Done()
		e.skipDependents(ctx, n)
	})
}

func (e *Executor) skipDependents(ctx context.Context, n *node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		logger.Warn("Skipping dependent job due to upstream failure.", "job", dependent.job.Name, "dependency", n.job.Name)
		e.skip(ctx, dependent, fmt.Errorf("%w due to upstream failure of %q", errSkipped, n.job.Name))
	}
}

func (e *Executor) runJob(ctx context.Context, j *job.Job) error {
	name, args := filepath.Join(j.Dir, generate.RunScript), []string(nil)
	if j.RunMode == job.Crab {
		name, args = e.Self, []string{"crab", "job", j.Dir, "--name", j.Name}
	}
	res, runErr := e.runner.Run(ctx, j.Dir, name, args...)
	if err := os.WriteFile(filepath.Join(j.Dir, StdoutFile), []byte(res.Stdout), 0o644); err != nil {
		ctxlog.FromContext(ctx).Warn("Could not write job log.", "error", err)
	}
	if err := os.WriteFile(filepath.Join(j.Dir, StderrFile), []byte(res.Stderr), 0o644); err != nil {
		ctxlog.FromContext(ctx).Warn("Could not write job log.", "error", err)
	}
	return runErr
}
