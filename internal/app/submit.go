package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/tkalgrid/internal/condor"
	"github.com/specialistvlad/tkalgrid/internal/dag"
	"github.com/specialistvlad/tkalgrid/internal/executor"
	"github.com/specialistvlad/tkalgrid/internal/generate"
	"github.com/specialistvlad/tkalgrid/internal/job"
	"github.com/specialistvlad/tkalgrid/internal/jobgraph"
)

// Submit starts the validation directory vdir: on this machine when local
// is set, otherwise as an HTCondor DAG.
func (a *App) Submit(ctx context.Context, vdir string, local bool) error {
	ctx = a.withLogger(ctx)

	m, err := job.ReadManifest(vdir)
	if err != nil {
		return err
	}
	g, err := jobgraph.Build(ctx, m.Jobs)
	if err != nil {
		return err
	}

	if local {
		return a.runLocal(ctx, m, g)
	}

	if crab := m.ByMode(job.Crab); len(crab) > 0 {
		list := filepath.Join(m.ValidationDir, generate.CrabList)
		a.printf("%d jobs run on the grid. Run 'tkalgrid crab submit %s' and 'tkalgrid crab monitor %s' first; the monitor tells you when to submit the DAG", len(crab), list, list)
		return nil
	}

	dagFile := filepath.Join(m.ValidationDir, generate.DAGFile)
	if a.config.DryRun {
		a.printf("Dry run: would run 'condor_submit_dag -force %s'", dagFile)
		return nil
	}
	id, err := condor.New(a.runner).SubmitDAG(ctx, dagFile)
	if err != nil {
		return err
	}
	a.printf("DAG %s submitted to cluster %s", dagFile, id)
	return nil
}

func (a *App) runLocal(ctx context.Context, m *job.Manifest, g *dag.Graph) error {
	ordered, err := jobgraph.Ordered(g, m.Jobs)
	if err != nil {
		return err
	}
	if a.config.DryRun {
		for _, j := range ordered {
			a.printf("Dry run: would run %s", filepath.Join(j.Dir, generate.RunScript))
		}
		return nil
	}

	exec, err := executor.New(ordered, g, a.runner, a.store, a.config.WorkerCount)
	if err != nil {
		return err
	}
	exec.Self = a.config.Self

	a.logger.Info("🚀 Starting local execution...", "jobs", len(ordered), "workers", a.config.WorkerCount)
	return a.withHealthCheck(func() error {
		if err := exec.Run(ctx); err != nil {
			return err
		}
		a.printf("All %d jobs finished", len(ordered))
		return nil
	})
}

// SubmitJob submits the single job name of vdir with condor_submit. It does
// not wait for the job's dependencies.
func (a *App) SubmitJob(ctx context.Context, vdir, name string) error {
	ctx = a.withLogger(ctx)

	m, err := job.ReadManifest(vdir)
	if err != nil {
		return err
	}
	j, ok := m.Job(name)
	if !ok {
		return fmt.Errorf("job %q is not part of %s", name, vdir)
	}
	if len(j.Dependencies) > 0 {
		a.logger.Warn("Job has dependencies that are not checked.", "job", name, "dependencies", j.Dependencies)
	}

	submitFile := filepath.Join(j.Dir, generate.SubmitFile)
	if a.config.DryRun {
		a.printf("Dry run: would run 'condor_submit %s'", submitFile)
		return nil
	}
	id, err := condor.New(a.runner).Submit(ctx, submitFile)
	if err != nil {
		return err
	}
	a.printf("Job %s submitted to cluster %s", name, id)
	return nil
}
