// Package mts builds the jobs of the muon track splitting (MTS) validation:
// one framework job per dataset and alignment, and one merge job per merge
// entry that waits for every single job it combines.
package mts

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/specialistvlad/tkalgrid/internal/config"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/job"
	"github.com/specialistvlad/tkalgrid/internal/optvalue"
	"github.com/specialistvlad/tkalgrid/internal/registry"
)

const (
	// Kind is the key of this validation under `validations`.
	Kind = "MTS"

	singleExe = "cmsRun"
	mergeExe  = "MTSmerge"

	// frameworkConfig is relative to the framework release area.
	frameworkConfig = "src/Alignment/OfflineValidation/python/TkAlAllInOneTool/MTS_cfg.py"

	// OutputFile is the file every single job writes into its output dir.
	OutputFile = "MTS.root"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the MTS builder.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterBuilder(Kind, Build)
}

// Build returns single jobs first, then merge jobs.
func Build(ctx context.Context, model *config.Model, env registry.Env) ([]*job.Job, error) {
	set, ok := model.Validations[Kind]
	if !ok {
		return nil, nil
	}
	singles, err := buildSingles(ctx, model, set, env)
	if err != nil {
		return nil, err
	}
	merges, err := buildMerges(ctx, model, set, env)
	if err != nil {
		return nil, err
	}
	return append(singles, merges...), nil
}

// SingleName is the job name of one dataset/alignment pair.
func SingleName(dataset, alignment string) string {
	return fmt.Sprintf("MTS_%s_%s", dataset, alignment)
}

// MergeName is the job name of a merge entry.
func MergeName(merge string) string {
	return fmt.Sprintf("MTS_merge_%s", merge)
}

func singleOutput(model *config.Model, dataset, alignment string) string {
	return path.Join(model.LFS, model.Name, alignment, dataset)
}

func buildSingles(ctx context.Context, model *config.Model, set *config.ValidationSet, env registry.Env) ([]*job.Job, error) {
	logger := ctxlog.FromContext(ctx)
	var jobs []*job.Job

	for _, dataset := range optvalue.SortedKeys(set.Single) {
		opts := set.Single[dataset]
		aligns, err := set.Alignments(dataset)
		if err != nil {
			return nil, fmt.Errorf("single %q: %w", dataset, err)
		}
		mode, err := runMode(opts, env.RunMode)
		if err != nil {
			return nil, fmt.Errorf("single %q: %w", dataset, err)
		}

		for _, alignment := range aligns {
			alignOpts, ok := model.Alignments[alignment]
			if !ok {
				return nil, fmt.Errorf("single %q: alignment %q is not defined", dataset, alignment)
			}
			local := config.Options{
				"output":     singleOutput(model, dataset, alignment),
				"alignment":  alignmentConfig(alignment, alignOpts),
				"validation": optvalue.Without(opts, config.AlignmentsKey, config.RunModeKey),
			}
			j := &job.Job{
				Name:            SingleName(dataset, alignment),
				Dir:             filepath.Join(env.ValidationDir, Kind, "single", dataset, alignment),
				Exe:             singleExe,
				FrameworkConfig: filepath.Join(env.FrameworkBase, frameworkConfig),
				RunMode:         mode,
				Dependencies:    []string{},
				Config:          local,
			}
			logger.Debug("Single job built.", "job", j.Name, "run_mode", j.RunMode)
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func buildMerges(ctx context.Context, model *config.Model, set *config.ValidationSet, env registry.Env) ([]*job.Job, error) {
	logger := ctxlog.FromContext(ctx)
	var jobs []*job.Job

	for _, merge := range optvalue.SortedKeys(set.Merge) {
		opts := set.Merge[merge]
		singles, err := set.Singles(merge)
		if err != nil {
			return nil, fmt.Errorf("merge %q: %w", merge, err)
		}
		mode, err := runMode(opts, env.RunMode)
		if err != nil {
			return nil, fmt.Errorf("merge %q: %w", merge, err)
		}
		// Merges read the single outputs from shared storage, never on the grid.
		if mode == job.Crab {
			mode = job.Condor
		}

		deps := []string{}
		inputs := []any{}
		alignments := config.Options{}
		seen := map[string]bool{}
		for _, dataset := range singles {
			if seen[dataset] {
				logger.Warn("Dataset listed twice in merge, ignoring repeat.", "merge", merge, "dataset", dataset)
				continue
			}
			seen[dataset] = true
			aligns, err := set.Alignments(dataset)
			if err != nil {
				return nil, fmt.Errorf("merge %q: %w", merge, err)
			}
			for _, alignment := range aligns {
				deps = append(deps, SingleName(dataset, alignment))
				inputs = append(inputs, map[string]any{
					"alignment": alignment,
					"dataset":   dataset,
					"file":      path.Join(singleOutput(model, dataset, alignment), OutputFile),
				})
				if _, seen := alignments[alignment]; !seen {
					alignments[alignment] = alignmentConfig(alignment, model.Alignments[alignment])
				}
			}
		}

		j := &job.Job{
			Name:         MergeName(merge),
			Dir:          filepath.Join(env.ValidationDir, Kind, "merge", merge),
			Exe:          mergeExe,
			RunMode:      mode,
			Dependencies: deps,
			Config: config.Options{
				"output":     path.Join(model.LFS, model.Name, Kind, "merge", merge),
				"alignments": alignments,
				"validation": optvalue.Without(opts, config.SinglesKey, config.RunModeKey),
				"input":      inputs,
			},
		}
		logger.Debug("Merge job built.", "job", j.Name, "dependencies", len(deps))
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func alignmentConfig(name string, opts config.Options) config.Options {
	out := optvalue.DeepCopy(opts)
	if _, ok := out["name"]; !ok {
		out["name"] = name
	}
	return out
}

func runMode(opts config.Options, fallback job.RunMode) (job.RunMode, error) {
	raw, ok := opts[config.RunModeKey]
	if !ok {
		if fallback == "" {
			return job.Condor, nil
		}
		return fallback, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", config.RunModeKey, raw)
	}
	return job.ParseRunMode(s)
}
