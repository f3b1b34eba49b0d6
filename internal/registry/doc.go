// Package registry maps validation kinds (the keys under `validations` in a
// config, e.g. "MTS") to the Go builders that turn a config into jobs.
//
// Each validation kind lives in its own package under internal/validations
// and registers itself through the Module interface. Registering the same
// kind twice is a programmer error and panics at startup.
package registry
