// Package config defines the format-agnostic validation configuration model
// along with the Loader interface implemented by the HCL and YAML readers.
//
// The Model is the single input of the job builders: it names the
// validation campaign, the storage area outputs are written to, the
// alignments under test and, per validation kind, the single (per-dataset)
// and merge entries. Option values are opaque to this package; they are
// handed to the external framework untouched.
package config
