package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/tkalgrid/internal/command"
	"github.com/specialistvlad/tkalgrid/internal/config"
	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/hcl"
	"github.com/specialistvlad/tkalgrid/internal/registry"
	"github.com/specialistvlad/tkalgrid/internal/statusstore"
	"github.com/specialistvlad/tkalgrid/internal/yamlconfig"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	registry   *registry.Registry
	runner     command.Runner
	store      *statusstore.Store
	ctx        context.Context
	httpServer *http.Server
}

// NewApp is the constructor for the main application. User facing output
// goes to outW, logs to logW. A nil runner runs real processes.
func NewApp(outW, logW io.Writer, cfg *Config, runner command.Runner, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules
	}
	reg := registry.New(modules...)
	logger.Debug("All validation modules registered.", "count", len(modules), "kinds", reg.Kinds())

	if runner == nil {
		runner = &command.ExecRunner{}
	}
	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		runner:   runner,
		store:    statusstore.New(),
		ctx:      ctxlog.WithLogger(context.Background(), logger),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Store returns the status store fed by the executor and the grid monitor.
func (a *App) Store() *statusstore.Store {
	return a.store
}

func (a *App) withLogger(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.outW, format+"\n", args...)
}

// loaderFor picks the configuration loader from the path's extension.
// Directories are read as HCL.
func loaderFor(path string) (config.Loader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case "", hcl.Extension:
		return hcl.NewLoader(), nil
	case ".yaml", ".yml", ".json":
		return yamlconfig.NewLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", ext)
	}
}
