package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/specialistvlad/tkalgrid/internal/config"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/job"
	"github.com/specialistvlad/tkalgrid/internal/optvalue"
)

// Env carries the generation settings every builder needs.
type Env struct {
	// ValidationDir is the root under which job directories are created.
	ValidationDir string
	// FrameworkBase is the framework release area ($CMSSW_BASE).
	FrameworkBase string
	// RunMode is used for jobs whose config does not pick one.
	RunMode job.RunMode
}

// Builder produces the jobs of one validation kind.
type Builder func(ctx context.Context, model *config.Model, env Env) ([]*job.Job, error)

// Module is the interface that every validation package implements to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the builders for a single application instance.
type Registry struct {
	builders map[string]Builder
}

// New creates a registry and registers the given modules.
func New(modules ...Module) *Registry {
	r := &Registry{builders: make(map[string]Builder)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterBuilder registers fn for a validation kind.
func (r *Registry) RegisterBuilder(kind string, fn Builder) {
	if _, exists := r.builders[kind]; exists {
		panic(fmt.Sprintf("builder for validation kind '%s' already registered", kind))
	}
	slog.Debug("Registering validation builder.", "kind", kind)
	r.builders[kind] = fn
}

// Kinds returns the registered validation kinds in sorted order.
func (r *Registry) Kinds() []string {
	return optvalue.SortedKeys(r.builders)
}

// Build runs the builder of every validation kind present in model, in
// sorted kind order, and concatenates the resulting jobs.
func (r *Registry) Build(ctx context.Context, model *config.Model, env Env) ([]*job.Job, error) {
	logger := ctxlog.FromContext(ctx)
	var jobs []*job.Job
	for _, kind := range optvalue.SortedKeys(model.Validations) {
		fn, ok := r.builders[kind]
		if !ok {
			return nil, fmt.Errorf("no builder registered for validation kind %q (known: %v)", kind, r.Kinds())
		}
		built, err := fn(ctx, model, env)
		if err != nil {
			return nil, fmt.Errorf("building %s jobs: %w", kind, err)
		}
		logger.Debug("Validation jobs built.", "kind", kind, "count", len(built))
		jobs = append(jobs, built...)
	}
	return jobs, nil
}
