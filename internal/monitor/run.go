package monitor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/specialistvlad/tkalgrid/internal/crab"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/statusstore"
	"golang.org/x/sync/errgroup"
)

// Run polls every task each round until all of them have finished and had
// their output transferred, or ctx ends.
func (m *Monitor) Run(ctx context.Context, tasks []Task) error {
	logger := ctxlog.FromContext(ctx)
	styles := newStyles(m.out)
	remaining := append([]Task(nil), tasks...)
	for _, t := range remaining {
		m.store.Set(t.Name, statusstore.Entry{State: statusstore.Pending})
	}

	for round := 1; len(remaining) > 0; round++ {
		fmt.Fprintf(m.out, "\nStatus of crab jobs (%s)\n\n", m.now().Format("Mon Jan _2 15:04:05 2006"))

		reports := make([]Report, len(remaining))
		errs := make([]error, len(remaining))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.opts.Workers)
		for i, t := range remaining {
			g.Go(func() error {
				reports[i], errs[i] = m.Poll(gctx, t)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}

		var next []Task
		for i, t := range remaining {
			rep, err := reports[i], errs[i]
			fmt.Fprintln(m.out, styles.line(rep, err))
			m.record(rep, err)
			if err != nil || rep.State != crab.Finished {
				if err != nil {
					logger.Warn("Polling task failed.", "task", t.Name, "error", err)
				}
				next = append(next, t)
			}
		}
		logger.Debug("Polling round complete.", "round", round, "remaining", len(next))

		remaining = next
		if len(remaining) == 0 {
			break
		}
		if err := sleep(ctx, m.opts.Interval); err != nil {
			return err
		}
	}
	logger.Info("✅ All grid tasks finished.", "tasks", len(tasks))
	return nil
}

// RunOne follows a single task: it is submitted, then polled until it has
// finished and its output has been transferred.
func (m *Monitor) RunOne(ctx context.Context, t Task) error {
	msg, err := m.Submit(ctx, t)
	if err != nil {
		return err
	}
	m.printf("%s", msg)

	for {
		rep, err := m.Poll(ctx, t)
		m.record(rep, err)
		switch {
		case err != nil:
			ctxlog.FromContext(ctx).Warn("Polling task failed.", "task", t.Name, "error", err)
		case rep.State == crab.Finished:
			m.printf("Output file transferred: %s", rep.Output)
			return nil
		case rep.State == crab.Failed:
			m.printf("Job '%s' failed %s", t.Name, rep.Message)
		case rep.Message != "":
			m.printf("%s", rep.Message)
		default:
			m.printf("Job '%s' is '%s'", t.Name, rep.State)
		}
		if err := sleep(ctx, m.opts.Interval); err != nil {
			return err
		}
	}
}

func (m *Monitor) printf(format string, args ...any) {
	fmt.Fprintf(m.out, "[%s] %s\n", m.now().Format("Mon Jan _2 15:04:05 2006"), fmt.Sprintf(format, args...))
}

func (m *Monitor) record(rep Report, err error) {
	e := statusstore.Entry{State: storeState(rep.State), Message: rep.Message}
	if err != nil {
		e.Message = err.Error()
		if rep.State == crab.Finished {
			e.State = statusstore.Running
		}
	}
	m.store.Set(rep.Name, e)
}

func storeState(s crab.State) statusstore.State {
	switch s {
	case crab.Running:
		return statusstore.Running
	case crab.Finished:
		return statusstore.Finished
	case crab.Failed:
		return statusstore.Failed
	default:
		return statusstore.Pending
	}
}

type styles struct {
	running, finished, failed, pending lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		running:  r.NewStyle().Foreground(lipgloss.Color("4")),
		finished: r.NewStyle().Foreground(lipgloss.Color("2")),
		failed:   r.NewStyle().Foreground(lipgloss.Color("1")),
		pending:  r.NewStyle(),
	}
}

// line formats one task's status as printed after each polling round.
func (s styles) line(rep Report, err error) string {
	var label string
	switch rep.State {
	case crab.Running:
		label = s.running.Render("RUNNING")
	case crab.Finished:
		label = s.finished.Render("FINISHED")
	case crab.Failed:
		label = s.failed.Render("FAILED")
	default:
		label = s.pending.Render("PENDING")
		if rep.State != "" && !rep.State.Known() {
			label += " (" + string(rep.State) + ")"
		}
	}
	parts := []string{rep.Name + ": " + label}
	if rep.Message != "" {
		parts = append(parts, rep.Message)
	}
	if err != nil {
		parts = append(parts, "(error: "+err.Error()+")")
	}
	return strings.Join(parts, " ")
}
