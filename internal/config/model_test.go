package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validModel() *Model {
	m := NewModel()
	m.Name = "demo"
	m.LFS = "/eos/cms/store/group/alca_trackeralign/demo"
	m.Alignments["ideal"] = Options{"globaltag": "auto:phase1_2017_design"}
	m.Alignments["prompt"] = Options{"globaltag": "auto:run2_data"}
	set := m.Validation("MTS")
	set.Single["cosmics"] = Options{"alignments": []any{"ideal", "prompt"}}
	set.Merge["summary"] = Options{"singles": []any{"cosmics"}}
	return m
}

func TestValidate_ValidModel(t *testing.T) {
	t.Parallel()

	require.NoError(t, validModel().Validate())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	t.Parallel()

	m := validModel()
	m.Name = ""
	set := m.Validation("MTS")
	set.Single["cosmics"]["alignments"] = []any{"ideal", "nope"}
	set.Single["empty"] = Options{"alignments": []any{}}
	set.Single["broken"] = Options{"alignments": "ideal"}
	set.Merge["summary"]["singles"] = []any{"cosmics", "ghost"}

	err := m.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "name is required")
	assert.ErrorContains(t, err, `alignment "nope" is not defined`)
	assert.ErrorContains(t, err, `single "empty": no alignments listed`)
	assert.ErrorContains(t, err, `single "broken": alignments: expected a list of strings`)
	assert.ErrorContains(t, err, `single "ghost" is not defined`)
}

func TestValidate_RepeatedNames(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m := validModel()
	set := m.Validation("MTS")
	set.Single["cosmics"]["alignments"] = []any{"ideal", "prompt", "ideal"}
	set.Merge["summary"]["singles"] = []any{"cosmics", "cosmics"}

	// --- Act ---
	err := m.Validate()

	// --- Assert ---
	require.Error(t, err)
	assert.ErrorContains(t, err, `single "cosmics": alignment "ideal" listed more than once`)
	assert.ErrorContains(t, err, `merge "summary": single "cosmics" listed more than once`)
}

func TestValidation_CreatesOnce(t *testing.T) {
	t.Parallel()

	m := NewModel()
	a := m.Validation("MTS")
	b := m.Validation("MTS")
	assert.Same(t, a, b)
	assert.NotNil(t, a.Single)
	assert.NotNil(t, a.Merge)
}

func TestValidationSet_Lookups(t *testing.T) {
	t.Parallel()

	set := validModel().Validation("MTS")

	aligns, err := set.Alignments("cosmics")
	require.NoError(t, err)
	assert.Equal(t, []string{"ideal", "prompt"}, aligns)

	singles, err := set.Singles("summary")
	require.NoError(t, err)
	assert.Equal(t, []string{"cosmics"}, singles)

	_, err = set.Alignments("nope")
	assert.ErrorContains(t, err, "unknown dataset")
	_, err = set.Singles("nope")
	assert.ErrorContains(t, err, "unknown merge")
}
