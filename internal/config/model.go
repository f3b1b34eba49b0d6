package config

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/tkalgrid/internal/optvalue"
)

const (
	// AlignmentsKey lists the alignments a single entry runs over.
	AlignmentsKey = "alignments"
	// SinglesKey lists the single entries a merge entry combines.
	SinglesKey = "singles"
	// RunModeKey overrides the run mode of a single entry.
	RunModeKey = "runmode"
)

// Options is a set of named option values owned by the external framework.
type Options = optvalue.Options

// Model is the unified representation of a validation configuration.
type Model struct {
	Name        string
	LFS         string
	Alignments  map[string]Options
	Validations map[string]*ValidationSet
}

// ValidationSet groups the entries of one validation kind.
type ValidationSet struct {
	// Single maps a dataset name to its options.
	Single map[string]Options
	// Merge maps a merge name to its options.
	Merge map[string]Options
}

// NewModel returns an empty model with all maps initialised.
func NewModel() *Model {
	return &Model{
		Alignments:  make(map[string]Options),
		Validations: make(map[string]*ValidationSet),
	}
}

// NewValidationSet returns an empty set with both maps initialised.
func NewValidationSet() *ValidationSet {
	return &ValidationSet{
		Single: make(map[string]Options),
		Merge:  make(map[string]Options),
	}
}

// Validation returns the set for kind, creating it if needed.
func (m *Model) Validation(kind string) *ValidationSet {
	set, ok := m.Validations[kind]
	if !ok {
		set = NewValidationSet()
		m.Validations[kind] = set
	}
	return set
}

// Alignments returns the alignment names a single entry refers to.
func (s *ValidationSet) Alignments(dataset string) ([]string, error) {
	opts, ok := s.Single[dataset]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q", dataset)
	}
	return optvalue.StringList(opts[AlignmentsKey])
}

// Singles returns the dataset names a merge entry refers to.
func (s *ValidationSet) Singles(merge string) ([]string, error) {
	opts, ok := s.Merge[merge]
	if !ok {
		return nil, fmt.Errorf("unknown merge %q", merge)
	}
	return optvalue.StringList(opts[SinglesKey])
}

// Validate checks required fields and that every name referenced from one
// section of the model exists in the section it points to. All problems are
// reported together.
func (m *Model) Validate() error {
	var errs []error
	if m.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if m.LFS == "" {
		errs = append(errs, errors.New("LFS is required"))
	}

	for _, kind := range optvalue.SortedKeys(m.Validations) {
		set := m.Validations[kind]
		for _, ds := range optvalue.SortedKeys(set.Single) {
			aligns, err := set.Alignments(ds)
			if err != nil {
				errs = append(errs, fmt.Errorf("validation %s single %q: %s: %w", kind, ds, AlignmentsKey, err))
				continue
			}
			if len(aligns) == 0 {
				errs = append(errs, fmt.Errorf("validation %s single %q: no alignments listed", kind, ds))
			}
			for _, a := range aligns {
				if _, ok := m.Alignments[a]; !ok {
					errs = append(errs, fmt.Errorf("validation %s single %q: alignment %q is not defined", kind, ds, a))
				}
			}
			for _, a := range repeated(aligns) {
				errs = append(errs, fmt.Errorf("validation %s single %q: alignment %q listed more than once", kind, ds, a))
			}
		}
		for _, merge := range optvalue.SortedKeys(set.Merge) {
			singles, err := set.Singles(merge)
			if err != nil {
				errs = append(errs, fmt.Errorf("validation %s merge %q: %s: %w", kind, merge, SinglesKey, err))
				continue
			}
			if len(singles) == 0 {
				errs = append(errs, fmt.Errorf("validation %s merge %q: no singles listed", kind, merge))
			}
			for _, ds := range singles {
				if _, ok := set.Single[ds]; !ok {
					errs = append(errs, fmt.Errorf("validation %s merge %q: single %q is not defined", kind, merge, ds))
				}
			}
			for _, ds := range repeated(singles) {
				errs = append(errs, fmt.Errorf("validation %s merge %q: single %q listed more than once", kind, merge, ds))
			}
		}
	}
	return errors.Join(errs...)
}

// repeated returns every name that occurs more than once, in order of its
// second occurrence.
func repeated(names []string) []string {
	seen := make(map[string]int, len(names))
	var out []string
	for _, n := range names {
		seen[n]++
		if seen[n] == 2 {
			out = append(out, n)
		}
	}
	return out
}
