package app

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int

	// PollInterval overrides the grid monitor's pause between polls.
	PollInterval time.Duration
	DryRun       bool

	// FrameworkBase is the framework release area framework configs are
	// resolved against.
	FrameworkBase string
	// EOSPrefix is the mount point of the storage grid outputs land on.
	EOSPrefix string
	// Self is the path of the running binary, used by grid DAG nodes.
	Self string
	// CrabBin and Python name the external tools driven by the grid flows.
	CrabBin string
	Python  string
}

// Defaults applied by NewConfig to empty fields.
const (
	DefaultEOSPrefix = "/eos/cms"
	DefaultSelf      = "tkalgrid"
	DefaultCrabBin   = "crab"
	DefaultPython    = "python3"
)

func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat))
	}
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel))
	}
	if cfg.WorkerCount < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		errs = append(errs, fmt.Errorf("healthcheck-port %d is out of range", cfg.HealthcheckPort))
	}
	if cfg.PollInterval < 0 {
		errs = append(errs, errors.New("poll-interval cannot be negative"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if cfg.EOSPrefix == "" {
		cfg.EOSPrefix = DefaultEOSPrefix
	}
	if cfg.Self == "" {
		cfg.Self = DefaultSelf
	}
	if cfg.CrabBin == "" {
		cfg.CrabBin = DefaultCrabBin
	}
	if cfg.Python == "" {
		cfg.Python = DefaultPython
	}
	return &cfg, nil
}
