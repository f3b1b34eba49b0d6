package monitor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/tkalgrid/internal/crab"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/fsutil"
)

// ErrNoOutput is returned when a finished task did not report an output
// file within the configured number of attempts.
var ErrNoOutput = errors.New("finished task reported no output file")

// Poll queries t once and acts on its state: a task the client does not
// know is submitted, a failed job is resubmitted and a finished job has its
// output moved into place.
func (m *Monitor) Poll(ctx context.Context, t Task) (Report, error) {
	ctx, logger := ctxlog.With(ctx, "task", t.Name)
	reqDir := t.Config.RequestDir()
	rep := Report{Name: t.Name, State: crab.Pending}

	st, err := m.client.Status(ctx, reqDir)
	if err != nil {
		logger.Debug("No status for task, submitting.", "error", err)
		msg, err := m.Submit(ctx, t)
		rep.Message = msg
		return rep, err
	}

	j := st.Job()
	rep.State = j.State
	switch j.State {
	case crab.Failed:
		rep.Message = fmt.Sprintf("[Error code = %s] (Resubmitting...)", j.ErrorCode())
		if err := m.client.Resubmit(ctx, reqDir); err != nil {
			logger.Warn("Resubmission failed, retrying next round.", "error", err)
		}
	case crab.Finished:
		out, err := m.fetchOutput(ctx, t)
		if err != nil {
			return rep, err
		}
		rep.Output = out
		rep.Message = "Output file transferred: " + out
	}
	return rep, nil
}

// fetchOutput asks for the task's output until an LFN is returned, then
// copies the file next to the other validation outputs.
func (m *Monitor) fetchOutput(ctx context.Context, t Task) (string, error) {
	logger := ctxlog.FromContext(ctx)
	reqDir := t.Config.RequestDir()

	var lfns []string
	var lastErr error
	for attempt := 1; attempt <= m.opts.OutputRetries; attempt++ {
		lfns, lastErr = m.client.GetOutput(ctx, reqDir)
		if lastErr == nil && len(lfns) > 0 {
			break
		}
		logger.Debug("No output yet.", "attempt", attempt, "error", lastErr)
		if attempt == m.opts.OutputRetries {
			break
		}
		if err := sleep(ctx, m.opts.OutputBackoff); err != nil {
			return "", err
		}
	}
	if len(lfns) == 0 {
		if lastErr != nil {
			return "", fmt.Errorf("%w: %w", ErrNoOutput, lastErr)
		}
		return "", ErrNoOutput
	}

	src, dst := m.OutputPaths(t.Config, lfns[0])
	if err := fsutil.CopyFile(src, dst); err != nil {
		return "", fmt.Errorf("transfer output: %w", err)
	}
	logger.Info("📦 Output file transferred.", "from", src, "to", dst)
	return dst, nil
}

// OutputPaths returns where the grid wrote lfn and where it belongs. The
// client's `_1` job suffix is dropped from the file name.
func (m *Monitor) OutputPaths(cfg *crab.Config, lfn string) (src, dst string) {
	src = filepath.Join(m.opts.EOSPrefix, lfn)
	base := strings.ReplaceAll(path.Base(lfn), "_1.root", ".root")
	dst = filepath.Join(m.opts.EOSPrefix, cfg.Data.OutLFNDirBase, base)
	return src, dst
}
