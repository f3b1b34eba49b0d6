// Package generate writes everything a validation directory needs before
// submission: per-job configuration and scripts, the scheduler DAG file, the
// list of grid tasks and the job manifest.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/dag"
	"github.com/specialistvlad/tkalgrid/internal/fsutil"
	"github.com/specialistvlad/tkalgrid/internal/job"
	"github.com/specialistvlad/tkalgrid/internal/jobgraph"
	"github.com/specialistvlad/tkalgrid/internal/yamlconfig"
)

// File names inside every job directory.
const (
	ConfigJSON      = "validation.json"
	ConfigYAML      = "validation.yaml"
	FrameworkConfig = "validation_cfg.py"
	RunScript       = "run.sh"
	SubmitFile      = "job.submit"
)

// Paths of the shared files, relative to the validation directory.
var (
	DAGFile  = filepath.Join("DAG", "dagFile")
	CrabList = "crab.txt"
)

// Writer renders a manifest to disk.
type Writer struct {
	// Self is the path of this binary, used by grid job DAG nodes.
	Self string
	// DryRun logs what would be written without touching the filesystem.
	DryRun bool
}

// Result lists the shared files that were written.
type Result struct {
	DAGFile string
	// CrabList is empty when the manifest has no grid jobs.
	CrabList string
	Jobs     int
}

type templateData struct {
	*job.Job
	Self string
}

// Write renders every job of m plus the shared files. g must be the graph of
// m's jobs.
func (w *Writer) Write(ctx context.Context, m *job.Manifest, g *dag.Graph) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	ordered, err := jobgraph.Ordered(g, m.Jobs)
	if err != nil {
		return nil, err
	}

	for _, j := range ordered {
		if err := w.writeJob(ctx, j); err != nil {
			return nil, fmt.Errorf("job %s: %w", j.Name, err)
		}
	}

	res := &Result{DAGFile: filepath.Join(m.ValidationDir, DAGFile), Jobs: len(ordered)}
	if err := w.writeFile(ctx, res.DAGFile, []byte(RenderDAG(ordered)), 0o644); err != nil {
		return nil, fmt.Errorf("DAG file: %w", err)
	}

	if crab := m.ByMode(job.Crab); len(crab) > 0 {
		res.CrabList = filepath.Join(m.ValidationDir, CrabList)
		if err := w.writeFile(ctx, res.CrabList, []byte(RenderCrabList(crab)), 0o644); err != nil {
			return nil, fmt.Errorf("crab list: %w", err)
		}
	}

	if w.DryRun {
		logger.Info("Dry run: manifest not written.", "path", filepath.Join(m.ValidationDir, job.ManifestFile))
	} else if err := job.WriteManifest(m); err != nil {
		return nil, err
	}

	logger.Info("📝 Validation directory written.", "dir", m.ValidationDir, "jobs", res.Jobs)
	return res, nil
}

func (w *Writer) writeJob(ctx context.Context, j *job.Job) error {
	ctx, logger := ctxlog.With(ctx, "job", j.Name)
	logger.Debug("Writing job files.", "dir", j.Dir)

	if !w.DryRun {
		if err := os.MkdirAll(j.Dir, 0o755); err != nil {
			return fmt.Errorf("create job dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(j.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", ConfigJSON, err)
	}
	if err := w.writeFile(ctx, filepath.Join(j.Dir, ConfigJSON), append(data, '\n'), 0o644); err != nil {
		return err
	}

	var yamlBuf bytes.Buffer
	if err := yamlconfig.Encode(&yamlBuf, j.Config); err != nil {
		return fmt.Errorf("encode %s: %w", ConfigYAML, err)
	}
	if err := w.writeFile(ctx, filepath.Join(j.Dir, ConfigYAML), yamlBuf.Bytes(), 0o644); err != nil {
		return err
	}

	if j.FrameworkConfig != "" {
		link := filepath.Join(j.Dir, FrameworkConfig)
		if w.DryRun {
			logger.Info("Dry run: would link framework config.", "link", link, "target", j.FrameworkConfig)
		} else if err := fsutil.Symlink(j.FrameworkConfig, link); err != nil {
			return fmt.Errorf("link framework config: %w", err)
		}
	}

	td := templateData{Job: j, Self: w.Self}
	if err := w.render(ctx, runScript, td, filepath.Join(j.Dir, RunScript), 0o755); err != nil {
		return err
	}
	submit := condorSubmit
	if j.RunMode == job.Crab {
		submit = crabSubmit
	}
	return w.render(ctx, submit, td, filepath.Join(j.Dir, SubmitFile), 0o644)
}

func (w *Writer) render(ctx context.Context, tmpl *template.Template, data templateData, path string, perm os.FileMode) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return w.writeFile(ctx, path, buf.Bytes(), perm)
}

func (w *Writer) writeFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	logger := ctxlog.FromContext(ctx)
	if w.DryRun {
		logger.Info("Dry run: would write file.", "path", path, "bytes", len(data))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	// WriteFile leaves the mode of an existing file alone.
	return os.Chmod(path, perm)
}

// RenderDAG produces an HTCondor DAGMan description of ordered jobs.
func RenderDAG(ordered []*job.Job) string {
	var b strings.Builder
	for _, j := range ordered {
		fmt.Fprintf(&b, "JOB %s %s\n", j.Name, filepath.Join(j.Dir, SubmitFile))
	}
	for _, j := range ordered {
		for _, dep := range j.Dependencies {
			fmt.Fprintf(&b, "PARENT %s CHILD %s\n", dep, j.Name)
		}
	}
	return b.String()
}

// RenderCrabList produces the tab separated name/dir list read by the grid
// task commands.
func RenderCrabList(jobs []*job.Job) string {
	var b strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&b, "%s\t%s\n", j.Name, j.Dir)
	}
	return b.String()
}
