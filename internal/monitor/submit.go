package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/tkalgrid/internal/crab"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/fsutil"
)

const (
	runCrabScript = "#!/bin/bash\ncmsRun -j FrameworkJobReport.xml -p " + crab.FlatConfig + "\n"

	dumpScript = "import sys; exec(open(sys.argv[1]).read()); print(process.dumpPython())"
)

// Submit submits t unless the client already knows it. The returned message
// describes what happened.
func (m *Monitor) Submit(ctx context.Context, t Task) (string, error) {
	ctx, logger := ctxlog.With(ctx, "task", t.Name)
	reqDir := t.Config.RequestDir()

	if fsutil.Exists(reqDir) {
		st, err := m.client.Status(ctx, reqDir)
		if err == nil {
			return fmt.Sprintf("Job '%s' is submitted already with status '%s'", t.Name, st.Job().State), nil
		}
		if !staleRequest(err) {
			return "", fmt.Errorf("status of %s: %w", t.Name, err)
		}
		logger.Warn("Removing stale request directory.", "dir", reqDir, "error", err)
		if err := os.RemoveAll(reqDir); err != nil {
			return "", fmt.Errorf("remove %s: %w", reqDir, err)
		}
	}

	logger.Debug("Submitting grid task.", "mode", t.Config.Mode.String())
	if t.Config.Mode == crab.ModeScript {
		defer m.removeTemporaries(ctx, t)
		if err := m.writeScriptFiles(ctx, t); err != nil {
			return "", fmt.Errorf("prepare %s: %w", t.Name, err)
		}
	}

	var cfg bytes.Buffer
	if err := t.Config.Render(&cfg); err != nil {
		return "", fmt.Errorf("render grid config: %w", err)
	}
	if err := os.WriteFile(t.Config.Path(), cfg.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write grid config: %w", err)
	}

	err := m.client.Submit(ctx, t.Config.Path())
	if errors.Is(err, crab.ErrCacheNotFound) {
		logger.Warn("Request cache missing, retrying submission.", "dir", reqDir)
		if rmErr := os.RemoveAll(reqDir); rmErr != nil {
			return "", fmt.Errorf("remove %s: %w", reqDir, rmErr)
		}
		err = m.client.Submit(ctx, t.Config.Path())
	}
	switch {
	case errors.Is(err, crab.ErrAlreadyExists):
		return fmt.Sprintf("Job '%s' is already submitted", t.Name), nil
	case err != nil:
		return "", fmt.Errorf("grid job %s failed to submit: %w", t.Name, err)
	}

	logger.Info("🚀 Grid task submitted.", "request_dir", reqDir)
	return fmt.Sprintf("Job '%s' successfully submitted", t.Name), nil
}

// staleRequest reports whether a status error means the request dir no
// longer belongs to a live task.
func staleRequest(err error) bool {
	return errors.Is(err, crab.ErrTaskNotFound) ||
		errors.Is(err, crab.ErrCacheNotFound) ||
		errors.Is(err, crab.ErrNoStatus)
}

// writeScriptFiles writes the wrapper script and the flattened framework
// config shipped with a script mode task.
func (m *Monitor) writeScriptFiles(ctx context.Context, t Task) error {
	script := filepath.Join(t.Dir, crab.ScriptExe)
	if err := os.WriteFile(script, []byte(runCrabScript), 0o755); err != nil {
		return err
	}
	if err := os.Chmod(script, 0o755); err != nil {
		return err
	}

	// The framework's argument parser only reads what follows the first .py
	// argument, so the pset path has to be in argv.
	res, err := m.runner.Run(ctx, t.Dir, m.opts.Python, "-c", dumpScript,
		t.Config.JobType.PsetName, "config="+filepath.Join(t.Dir, "validation.json"), "isCrab=1")
	if err != nil {
		return fmt.Errorf("flatten framework config: %w", err)
	}
	return os.WriteFile(filepath.Join(t.Dir, crab.FlatConfig), []byte(res.Stdout), 0o644)
}

func (m *Monitor) removeTemporaries(ctx context.Context, t Task) {
	for _, name := range []string{crab.ScriptExe, crab.FlatConfig} {
		path := filepath.Join(t.Dir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			ctxlog.FromContext(ctx).Warn("Could not remove temporary file.", "path", path, "error", err)
		}
	}
}
