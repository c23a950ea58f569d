package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nsafar1/vbmgrid/internal/app"
	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/registry"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
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
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// globalOptions holds the persistent flags.
type globalOptions struct {
	logLevel        string
	logFormat       string
	logFile         string
	workers         int
	healthcheckPort int
	ledger          string
	traceFile       string
	noColor         bool
}

// Execute parses args and runs the selected command. Every returned error is
// an *ExitError.
func Execute(ctx context.Context, args []string, outW, errW io.Writer, loader config.Loader, version string, modules ...registry.Module) error {
	root := NewRootCmd(outW, errW, loader, version, modules...)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Anything cobra reports on its own is a usage problem.
	return usageError(err)
}

// NewRootCmd builds the command tree. modules defaults to the built-in
// operations.
func NewRootCmd(outW, errW io.Writer, loader config.Loader, version string, modules ...registry.Module) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:     "vbmgrid",
		Short:   "vbmgrid - cohort brain-image batch orchestrator",
		Version: version,
		Long: `vbmgrid drives every subject of a cohort through a pipeline of external
imaging transforms (normalization, smoothing...), then stacks the
per-subject matrices into a validated tensor joined with phenotype data.

Per-subject problems never stop a run: they are logged, counted and
written to run-summary.yaml in the output directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this file.")
	flags.IntVar(&opts.workers, "workers", 0, "Number of subjects processed concurrently. 0 uses the pipeline file's value.")
	flags.IntVar(&opts.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	flags.StringVar(&opts.ledger, "ledger", "", "Record the run in this SQLite database.")
	flags.StringVar(&opts.traceFile, "trace-file", "", "Write OpenTelemetry spans to this file.")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output.")

	commands := []struct {
		name, short string
	}{
		{app.CommandRun, "Process all subjects, then aggregate their matrices"},
		{app.CommandProcess, "Process all subjects through the pipeline stages"},
		{app.CommandAggregate, "Aggregate existing matrices into the cohort artifact"},
		{app.CommandValidate, "Check the pipeline file, subject lists and tools without running"},
	}
	for _, c := range commands {
		root.AddCommand(newCommand(c.name, c.short, opts, outW, loader, version, modules))
	}
	return root
}

func newCommand(name, short string, opts *globalOptions, outW io.Writer, loader config.Loader, version string, modules []registry.Module) *cobra.Command {
	return &cobra.Command{
		Use:   name + " PIPELINE_FILE",
		Short: short,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageError(err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.NewConfig(app.Config{
				PipelinePath:    args[0],
				Command:         name,
				LogFormat:       strings.ToLower(opts.logFormat),
				LogLevel:        strings.ToLower(opts.logLevel),
				LogFile:         opts.logFile,
				Workers:         opts.workers,
				HealthcheckPort: opts.healthcheckPort,
				LedgerPath:      opts.ledger,
				TraceFile:       opts.traceFile,
				Version:         version,
			})
			if err != nil {
				return usageError(err)
			}

			a, err := app.NewApp(cmd.ErrOrStderr(), cfg, loader, modules...)
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: err.Error()}
			}
			defer a.Close()

			result, runErr := a.Run(cmd.Context())
			printSummary(outW, result, opts.noColor)
			if runErr != nil {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%s failed: %v", name, runErr)}
			}
			return nil
		},
	}
}
