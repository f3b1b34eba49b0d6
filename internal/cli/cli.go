package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/specialistvlad/tkalgrid/internal/app"
	"github.com/specialistvlad/tkalgrid/internal/command"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// globalFlags are shared by every command.
type globalFlags struct {
	logLevel        string
	logFormat       string
	workers         int
	healthcheckPort int
	pollInterval    time.Duration
	dryRun          bool
	frameworkBase   string
	eosPrefix       string
}

// Options inject dependencies into the command tree.
type Options struct {
	// Runner replaces the process runner used by every command.
	Runner command.Runner
	// Self is the path of the binary written into grid DAG nodes.
	Self string
}

type root struct {
	outW, errW io.Writer
	opts       Options
	flags      globalFlags
}

// NewRootCommand builds the full command tree. Command output goes to outW,
// logs to errW.
func NewRootCommand(outW, errW io.Writer, opts Options) *cobra.Command {
	r := &root{outW: outW, errW: errW, opts: opts}

	cmd := &cobra.Command{
		Use:   "tkalgrid",
		Short: "Generate, submit and monitor tracker alignment validation jobs",
		Long: `tkalgrid turns a validation configuration into a directory of batch jobs,
submits them to HTCondor, this machine or the grid, and follows grid tasks
until their outputs are in place.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(outW)
	cmd.SetErr(errW)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&r.flags.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&r.flags.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.IntVar(&r.flags.workers, "workers", 10, "Number of concurrent workers for local execution and grid polling.")
	pf.IntVar(&r.flags.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	pf.DurationVar(&r.flags.pollInterval, "poll-interval", 0, "Pause between grid status polls. 0 selects 60s for batches and 30s for single jobs.")
	pf.BoolVar(&r.flags.dryRun, "dry-run", false, "Log what would be done without writing or submitting anything.")
	pf.StringVar(&r.flags.frameworkBase, "framework-base", os.Getenv("CMSSW_BASE"), "Framework release area. Defaults to $CMSSW_BASE.")
	pf.StringVar(&r.flags.eosPrefix, "eos-prefix", app.DefaultEOSPrefix, "Mount point grid output file names are resolved against.")

	cmd.AddCommand(r.generateCommand(), r.submitCommand(), r.crabCommand(), r.graphCommand())
	return cmd
}

// newApp validates the global flags and creates the application.
func (r *root) newApp() (*app.App, error) {
	cfg, err := app.NewConfig(app.Config{
		LogFormat:       strings.ToLower(r.flags.logFormat),
		LogLevel:        strings.ToLower(r.flags.logLevel),
		HealthcheckPort: r.flags.healthcheckPort,
		WorkerCount:     r.flags.workers,
		PollInterval:    r.flags.pollInterval,
		DryRun:          r.flags.dryRun,
		FrameworkBase:   r.flags.frameworkBase,
		EOSPrefix:       r.flags.eosPrefix,
		Self:            r.opts.Self,
	})
	if err != nil {
		return nil, usageError(err)
	}
	return app.NewApp(r.outW, r.errW, cfg, r.opts.Runner), nil
}

// exactArgs reports a wrong argument count as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(fmt.Errorf("%s: %w", cmd.CommandPath(), err))
		}
		return nil
	}
}

func (r *root) generateCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "generate CONFIG",
		Short: "Build the jobs of a configuration and write the validation directory",
		Long: `Loads CONFIG (an .hcl file, a directory of .hcl files, or a .yaml/.json
file), checks it, builds every job and writes the job directories, the
HTCondor DAG file, the grid task list and the job manifest.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.newApp()
			if err != nil {
				return err
			}
			_, err = a.Generate(cmd.Context(), args[0], outDir)
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Validation directory. Defaults to the configuration name.")
	return cmd
}

func (r *root) submitCommand() *cobra.Command {
	var local bool
	var jobName string
	cmd := &cobra.Command{
		Use:   "submit DIR",
		Short: "Submit a generated validation directory",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if local && jobName != "" {
				return usageError(errors.New("--local and --job cannot be combined"))
			}
			a, err := r.newApp()
			if err != nil {
				return err
			}
			if jobName != "" {
				return a.SubmitJob(cmd.Context(), args[0], jobName)
			}
			return a.Submit(cmd.Context(), args[0], local)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run every job on this machine instead of submitting the DAG.")
	cmd.Flags().StringVar(&jobName, "job", "", "Submit only this job with condor_submit.")
	return cmd
}

func (r *root) crabCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crab",
		Short: "Submit and monitor the grid tasks of a validation directory",
	}

	submit := &cobra.Command{
		Use:   "submit INFO",
		Short: "Submit every task listed in INFO (the crab.txt of a validation directory)",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.newApp()
			if err != nil {
				return err
			}
			return a.CrabSubmit(cmd.Context(), args[0])
		},
	}

	monitor := &cobra.Command{
		Use:   "monitor INFO",
		Short: "Follow every task listed in INFO until all outputs are transferred",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.newApp()
			if err != nil {
				return err
			}
			return a.CrabMonitor(cmd.Context(), args[0])
		},
	}

	var name string
	single := &cobra.Command{
		Use:   "job DIR",
		Short: "Submit the task of one job directory and follow it to completion",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return usageError(errors.New("--name is required"))
			}
			a, err := r.newApp()
			if err != nil {
				return err
			}
			return a.CrabJob(cmd.Context(), args[0], name)
		},
	}
	single.Flags().StringVarP(&name, "name", "n", "", "Job name.")

	cmd.AddCommand(submit, monitor, single)
	return cmd
}

func (r *root) graphCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph DIR",
		Short: "Print the jobs of a validation directory in dependency order",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.newApp()
			if err != nil {
				return err
			}
			return a.Graph(cmd.Context(), args[0])
		},
	}
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, outW, errW io.Writer, opts Options) error {
	cmd := NewRootCommand(outW, errW, opts)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return usageError(err)
	}
	return &ExitError{Code: 1, Message: err.Error()}
}
