// Package jobgraph turns a flat job list into a validated dependency graph.
package jobgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/dag"
	"github.com/specialistvlad/tkalgrid/internal/job"
)

// ErrDuplicateJob is returned when two jobs share a name.
var ErrDuplicateJob = errors.New("duplicate job name")

// ErrUnknownDependency is returned when a job lists a dependency that is not
// part of the job list.
var ErrUnknownDependency = errors.New("unknown dependency")

// Build constructs the dependency graph of jobs. Node IDs are job names.
func Build(ctx context.Context, jobs []*job.Job) (*dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting job graph construction.", "jobs", len(jobs))

	g := dag.New()
	for _, j := range jobs {
		if g.HasNode(j.Name) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, j.Name)
		}
		g.AddNode(j.Name)
	}

	for _, j := range jobs {
		for _, dep := range j.Dependencies {
			if !g.HasNode(dep) {
				return nil, fmt.Errorf("%w: job %s depends on %s", ErrUnknownDependency, j.Name, dep)
			}
			if err := g.AddEdge(dep, j.Name); err != nil {
				return nil, fmt.Errorf("job %s: %w", j.Name, err)
			}
		}
	}
	logger.Debug("Build: Job linking complete.")

	if err := g.DetectCycles(); err != nil {
		return nil, fmt.Errorf("error validating job graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")
	return g, nil
}

// Ordered returns jobs in dependency order.
func Ordered(g *dag.Graph, jobs []*job.Job) ([]*job.Job, error) {
	byName := make(map[string]*job.Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name] = j
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	out := make([]*job.Job, 0, len(order))
	for _, name := range order {
		j, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("graph node %s has no job", name)
		}
		out = append(out, j)
	}
	return out, nil
}
