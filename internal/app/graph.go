package app

import (
	"context"
	"strings"

	"github.com/specialistvlad/tkalgrid/internal/job"
	"github.com/specialistvlad/tkalgrid/internal/jobgraph"
)

// Graph prints the jobs of the validation directory vdir in the order they
// can run, each with the jobs it waits for.
func (a *App) Graph(ctx context.Context, vdir string) error {
	ctx = a.withLogger(ctx)
	m, err := job.ReadManifest(vdir)
	if err != nil {
		return err
	}
	g, err := jobgraph.Build(ctx, m.Jobs)
	if err != nil {
		return err
	}
	ordered, err := jobgraph.Ordered(g, m.Jobs)
	if err != nil {
		return err
	}

	a.printf("%s (%d jobs, run %s)", m.ConfigName, len(ordered), m.RunID)
	for _, j := range ordered {
		line := "  " + j.Name + " [" + string(j.RunMode) + "]"
		if len(j.Dependencies) > 0 {
			line += " <- " + strings.Join(j.Dependencies, ", ")
		}
		a.printf("%s", line)
	}
	return nil
}
