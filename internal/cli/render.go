package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/harness"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Dialect string
	Query   string // render only this query
}

// RenderedQuery is one query in render output.
type RenderedQuery struct {
	Name        string   `json:"name"`
	State       string   `json:"state,omitempty"`
	SQL         string   `json:"sql,omitempty"`
	Args        []any    `json:"args,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	ErrorCode   string   `json:"error_code,omitempty"`
	Error       string   `json:"error,omitempty"`

	text querysql.QueryText
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <scenario>",
		Short: "Render a scenario's queries as SQL",
		Long: `Compose every query in a scenario file and print the SQL and bind
parameters for one dialect. Nothing is executed.

Exit codes:
  0 - All queries composed and rendered
  1 - One or more queries were rejected
  2 - Command error (unreadable scenario, bad flags)

Examples:
  relq render scenarios/latest_activation.yaml
  relq render scenarios/latest_activation.yaml --dialect postgres
  relq render scenarios/latest_activation.yaml --query latest --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "sqlite|postgres|mysql (default from config)")
	cmd.Flags().StringVar(&opts.Query, "query", "", "render only the named query")

	return cmd
}

func runRender(opts *RenderOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	dialect, err := dialectFlag(cmd, "dialect", opts.Dialect, opts.Config.Dialect)
	if err != nil {
		return err
	}

	scenario, err := harness.LoadScenario(opts.Fs, path)
	if err != nil {
		_ = out.Error(CodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	composed, err := harness.Compose(opts.Fs, scenario)
	if err != nil {
		_ = out.Error(CodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to compose scenario", err)
	}

	var rendered []RenderedQuery
	failed := 0
	for _, c := range composed {
		if opts.Query != "" && c.Name != opts.Query {
			continue
		}
		rq := renderQuery(c, dialect)
		if rq.Error != "" {
			failed++
		}
		rendered = append(rendered, rq)
	}
	if opts.Query != "" && len(rendered) == 0 {
		msg := fmt.Sprintf("scenario %s has no query %q", scenario.Name, opts.Query)
		_ = out.Error(CodeLoad, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	opts.Logger.Debug("rendered scenario", "scenario", scenario.Name, "dialect", dialect, "queries", len(rendered))

	if out.JSON() {
		data := map[string]any{"scenario": scenario.Name, "dialect": dialect, "queries": rendered}
		if failed > 0 {
			_ = out.Failure(CodeScenarioFailed, fmt.Sprintf("%d query(s) rejected", failed), data, nil)
		} else if err := out.Success(data); err != nil {
			return err
		}
	} else {
		for _, rq := range rendered {
			printRendered(out, rq)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d query(s) rejected", failed))
	}
	return nil
}

func renderQuery(c harness.ComposedQuery, d querysql.Dialect) RenderedQuery {
	rq := RenderedQuery{Name: c.Name}
	if c.Err != nil {
		rq.ErrorCode = string(queryir.CodeOf(c.Err))
		rq.Error = c.Err.Error()
		return rq
	}

	text, err := querysql.Render(c.Query, d)
	if err != nil {
		rq.Error = err.Error()
		return rq
	}
	rq.text = text
	rq.State = c.Query.State().String()
	rq.SQL = text.SQL
	rq.Args = text.Args()
	rq.Fingerprint, _ = text.Fingerprint()
	rq.Warnings = queryir.Validate(c.Query).Warnings
	return rq
}

func printRendered(out *OutputFormatter, rq RenderedQuery) {
	if rq.Error != "" {
		out.Fail(rq.Name, rq.Error)
		return
	}
	out.Text("-- %s (%s)", rq.Name, rq.State)
	out.Text("%s", rq.text)
	for _, w := range rq.Warnings {
		out.Text("-- warning: %s", w)
	}
	out.VerboseLog("fingerprint %s: %s", rq.Name, rq.Fingerprint)
}
