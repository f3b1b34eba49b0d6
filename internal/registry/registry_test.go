package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/tkalgrid/internal/config"
	"github.com/specialistvlad/tkalgrid/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	kind string
	fn   Builder
}

func (m *fakeModule) Register(r *Registry) { r.RegisterBuilder(m.kind, m.fn) }

func named(names ...string) Builder {
	return func(ctx context.Context, model *config.Model, env Env) ([]*job.Job, error) {
		var out []*job.Job
		for _, n := range names {
			out = append(out, &job.Job{Name: n, RunMode: env.RunMode})
		}
		return out, nil
	}
}

func TestBuild_SortedKinds(t *testing.T) {
	t.Parallel()

	r := New(&fakeModule{"PV", named("pv")}, &fakeModule{"MTS", named("mts1", "mts2")})
	model := config.NewModel()
	model.Validation("PV")
	model.Validation("MTS")

	jobs, err := r.Build(context.Background(), model, Env{RunMode: job.Local})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"mts1", "mts2", "pv"}, []string{jobs[0].Name, jobs[1].Name, jobs[2].Name})
	assert.Equal(t, job.Local, jobs[0].RunMode)
	assert.Equal(t, []string{"MTS", "PV"}, r.Kinds())
}

func TestBuild_UnknownKind(t *testing.T) {
	t.Parallel()

	r := New(&fakeModule{"MTS", named()})
	model := config.NewModel()
	model.Validation("DMR")

	_, err := r.Build(context.Background(), model, Env{})
	assert.ErrorContains(t, err, `no builder registered for validation kind "DMR"`)
}

func TestBuild_WrapsBuilderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := New(&fakeModule{"MTS", func(context.Context, *config.Model, Env) ([]*job.Job, error) { return nil, boom }})
	model := config.NewModel()
	model.Validation("MTS")

	_, err := r.Build(context.Background(), model, Env{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "building MTS jobs")
}

func TestRegisterBuilder_DuplicatePanics(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterBuilder("MTS", named())
	assert.Panics(t, func() { r.RegisterBuilder("MTS", named()) })
}
