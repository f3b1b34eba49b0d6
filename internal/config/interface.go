package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from path and translates it into the
	// format-agnostic model. It does not validate cross references; call
	// Model.Validate for that.
	Load(ctx context.Context, path string) (*Model, error)
}
