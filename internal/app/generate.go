package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/tkalgrid/internal/generate"
	"github.com/specialistvlad/tkalgrid/internal/job"
	"github.com/specialistvlad/tkalgrid/internal/jobgraph"
	"github.com/specialistvlad/tkalgrid/internal/registry"
)

// Generate loads the configuration at configPath, builds every job it
// describes and writes the validation directory. An empty outDir selects a
// directory named after the configuration in the working directory.
func (a *App) Generate(ctx context.Context, configPath, outDir string) (*generate.Result, error) {
	ctx = a.withLogger(ctx)
	logger := a.logger

	loader, err := loaderFor(configPath)
	if err != nil {
		return nil, err
	}
	model, err := loader.Load(ctx, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("Configuration loaded.", "name", model.Name, "validations", len(model.Validations))

	if outDir == "" {
		outDir = model.Name
	}
	vdir, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	jobs, err := a.registry.Build(ctx, model, registry.Env{
		ValidationDir: vdir,
		FrameworkBase: a.config.FrameworkBase,
		RunMode:       job.Condor,
	})
	if err != nil {
		return nil, err
	}
	g, err := jobgraph.Build(ctx, jobs)
	if err != nil {
		return nil, err
	}
	logger.Info("Jobs built.", "count", len(jobs))

	m := job.NewManifest(model.Name, vdir, jobs)
	w := &generate.Writer{Self: a.config.Self, DryRun: a.config.DryRun}
	res, err := w.Write(ctx, m, g)
	if err != nil {
		return nil, err
	}

	if a.config.DryRun {
		a.printf("Dry run: %d jobs would be written to %s", res.Jobs, vdir)
		return res, nil
	}
	a.printf("Wrote %d jobs. Submit with 'condor_submit_dag %s' or 'tkalgrid submit %s'", res.Jobs, res.DAGFile, vdir)
	if res.CrabList != "" {
		a.printf("Grid tasks are listed in %s. Run 'tkalgrid crab submit %s' and 'tkalgrid crab monitor %s' first", res.CrabList, res.CrabList, res.CrabList)
	}
	return res, nil
}
