package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/specialistvlad/tkalgrid/internal/crab"
	"github.com/specialistvlad/tkalgrid/internal/generate"
	"github.com/specialistvlad/tkalgrid/internal/monitor"
)

func (a *App) newMonitor(defaultInterval time.Duration) *monitor.Monitor {
	opts := monitor.Options{
		Interval:  a.config.PollInterval,
		Workers:   a.config.WorkerCount,
		EOSPrefix: a.config.EOSPrefix,
		Python:    a.config.Python,
	}
	if opts.Interval == 0 {
		opts.Interval = defaultInterval
	}
	client := crab.NewCLI(a.runner, a.config.CrabBin)
	return monitor.New(client, a.runner, a.store, a.outW, opts)
}

// loadTasks prepares a dataset mode task for every entry of the task list.
func loadTasks(infoPath string) ([]monitor.Task, error) {
	entries, err := crab.ReadTaskList(infoPath)
	if err != nil {
		return nil, err
	}
	tasks := make([]monitor.Task, 0, len(entries))
	for _, e := range entries {
		cfg, err := crab.Prepare(e.Name, e.Dir, crab.ModeDataset)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", e.Name, err)
		}
		tasks = append(tasks, monitor.Task{Name: e.Name, Dir: e.Dir, Config: cfg})
	}
	return tasks, nil
}

// CrabSubmit submits every task listed in infoPath, one after the other.
// A failing task does not stop the others.
func (a *App) CrabSubmit(ctx context.Context, infoPath string) error {
	ctx = a.withLogger(ctx)
	tasks, err := loadTasks(infoPath)
	if err != nil {
		return err
	}

	a.printf("\nStart submission of crab jobs\n")
	if a.config.DryRun {
		for _, t := range tasks {
			a.printf("%s: dry run, would submit %s", t.Name, t.Config.Path())
		}
		return nil
	}

	mon := a.newMonitor(monitor.BatchInterval)
	var errs []error
	for _, t := range tasks {
		msg, err := mon.Submit(ctx, t)
		if err != nil {
			a.printf("%s: %v", t.Name, err)
			errs = append(errs, err)
			continue
		}
		a.printf("%s: %s", t.Name, msg)
	}
	return errors.Join(errs...)
}

// CrabMonitor follows every task listed in infoPath until all outputs have
// been transferred.
func (a *App) CrabMonitor(ctx context.Context, infoPath string) error {
	ctx = a.withLogger(ctx)
	tasks, err := loadTasks(infoPath)
	if err != nil {
		return err
	}
	if a.config.DryRun {
		a.printf("Dry run: would monitor %d grid tasks", len(tasks))
		return nil
	}

	mon := a.newMonitor(monitor.BatchInterval)
	err = a.withHealthCheck(func() error {
		return mon.Run(ctx, tasks)
	})
	if err != nil {
		return err
	}

	vdir := filepath.Dir(infoPath)
	a.printf("\nAll crab jobs have finished, proceed with 'condor_submit_dag %s'", filepath.Join(vdir, generate.DAGFile))
	return nil
}

// CrabJob runs one task from submission to output transfer. It is the
// command a grid job's DAG node executes.
func (a *App) CrabJob(ctx context.Context, dir, name string) error {
	ctx = a.withLogger(ctx)
	cfg, err := crab.Prepare(name, dir, crab.ModeScript)
	if err != nil {
		return err
	}
	if a.config.DryRun {
		a.printf("Dry run: would submit and follow grid task %s from %s", name, dir)
		return nil
	}
	mon := a.newMonitor(monitor.SingleInterval)
	return mon.RunOne(ctx, monitor.Task{Name: name, Dir: dir, Config: cfg})
}
