package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level construct a validation file may hold.
type fileRoot struct {
	Name        string             `hcl:"name,optional"`
	LFS         string             `hcl:"lfs,optional"`
	Alignments  []*namedBlock      `hcl:"alignment,block"`
	Validations []*validationBlock `hcl:"validation,block"`
	Remain      hcl.Body           `hcl:",remain"`
}

// namedBlock is an `alignment`, `single` or `merge` block whose attributes
// are free-form framework options.
type namedBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// validationBlock groups the entries of one validation kind, e.g.
// `validation "MTS" { single "cosmics" { ... } }`.
type validationBlock struct {
	Kind    string        `hcl:"kind,label"`
	Singles []*namedBlock `hcl:"single,block"`
	Merges  []*namedBlock `hcl:"merge,block"`
}
