package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/harness"
	"github.com/roach88/relq/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Driver string
	DSN    string

	// IDGenerator allows overriding the run ID source (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator harness.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario against a database",
		Long: `Seed the scenario's fixtures into a database and run its steps,
checking every expectation.

The database defaults to a private in-memory SQLite database. A PostgreSQL
or MySQL database must be empty; the catalog tables are created in it.

Exit codes:
  0 - All steps met their expectations
  1 - One or more steps failed
  2 - Command error (unreadable scenario, unreachable database)

Examples:
  relq run scenarios/latest_activation.yaml
  relq run scenarios/latest_activation.yaml --driver postgres --dsn postgres://localhost/relq_test
  relq run scenarios/latest_activation.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioCommand(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", "", "sqlite|postgres|mysql (default from config)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "connection string or SQLite path (default from config)")

	return cmd
}

func runScenarioCommand(opts *RunOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	driver, err := dialectFlag(cmd, "driver", opts.Driver, opts.Config.Driver)
	if err != nil {
		return err
	}
	dsn := opts.Config.DSN
	if cmd.Flags().Changed("dsn") {
		dsn = opts.DSN
	}

	scenario, err := harness.LoadScenario(opts.Fs, path)
	if err != nil {
		_ = out.Error(CodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	opts.Logger.Info("opening database", "driver", driver)
	exec, err := store.OpenExecutor(ctx, driver, dsn, store.WithLogger(opts.Logger))
	if err != nil {
		_ = out.Error(CodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := exec.Close(); closeErr != nil {
			opts.Logger.Error("error closing database", "error", closeErr)
		}
	}()

	ids := opts.IDGenerator
	if ids == nil {
		ids = harness.UUIDv7Generator{}
	}
	result, err := harness.Run(ctx, scenario,
		harness.WithFs(opts.Fs),
		harness.WithExecutor(exec),
		harness.WithLogger(opts.Logger),
		harness.WithIDGenerator(ids),
	)
	if err != nil {
		_ = out.Error(CodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}
	out.TraceID = result.RunID

	if out.JSON() {
		if !result.Pass {
			_ = out.Failure(CodeScenarioFailed, fmt.Sprintf("%d expectation(s) failed", len(result.Errors)), result, result.Errors)
		} else if err := out.Success(result); err != nil {
			return err
		}
	} else {
		printSteps(out, result, exec)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func printSteps(out *OutputFormatter, result *harness.Result, exec store.Executor) {
	failures := make(map[string][]string)
	for _, e := range result.Errors {
		for _, s := range result.Steps {
			prefix := s.Name + ": "
			if len(e) > len(prefix) && e[:len(prefix)] == prefix {
				failures[s.Name] = append(failures[s.Name], e[len(prefix):])
				break
			}
		}
	}

	for _, s := range result.Steps {
		if msgs, failed := failures[s.Name]; failed {
			out.Fail(s.Name, msgs...)
		} else {
			out.Pass("%s", s.Name)
		}
		if text, ok := s.Render(exec.Dialect()); ok {
			out.VerboseLog("%s", text)
		}
	}
	out.Text("")
	out.Text("run %s: %d step(s), %d failure(s)", result.RunID, len(result.Steps), len(result.Errors))
}
