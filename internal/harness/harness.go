package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/store"
)

// Option configures a scenario run.
type Option func(*Harness)

// WithFs sets the filesystem the catalog is read from. Defaults to the
// OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(h *Harness) { h.fs = fs }
}

// WithLogger sets the logger. Defaults to discarding all output.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithIDGenerator sets the run ID source. Defaults to UUIDv7. A scenario's
// run_id takes precedence.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Harness) { h.ids = g }
}

// WithExecutor runs the scenario against exec instead of a fresh
// in-memory SQLite database. exec must point at an empty database; the
// harness creates the catalog tables in it and does not close it.
func WithExecutor(exec store.Executor) Option {
	return func(h *Harness) { h.exec = exec }
}

// Harness runs one scenario.
type Harness struct {
	fs      afero.Fs
	logger  *slog.Logger
	ids     IDGenerator
	exec    store.Executor
	builder *builder
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the catalog and open the executor
//  2. Create the catalog tables and seed fixtures
//  3. Run each step: compose, validate, render for every dialect, execute
//  4. Compare each step against its expectations
//
// An error is returned only when the scenario cannot run at all. Failed
// expectations are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		fs:     afero.NewOsFs(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(h)
	}

	cat, err := loadCatalog(h.fs, scenario)
	if err != nil {
		return nil, err
	}
	h.builder = newBuilder(cat, scenario.Queries)

	if h.exec == nil {
		s, err := store.Open(":memory:", store.WithLogger(h.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer s.Close()
		h.exec = s
	}

	fixtures, err := fixtureRows(scenario.Fixtures)
	if err != nil {
		return nil, err
	}
	if err := store.Seed(ctx, h.exec, cat, fixtures); err != nil {
		return nil, fmt.Errorf("failed to seed fixtures: %w", err)
	}

	runID := scenario.RunID
	if runID == "" {
		runID = h.ids.Generate()
	}
	logger := h.logger.With("scenario", scenario.Name, "run_id", runID)
	logger.Info("running scenario", "steps", len(scenario.Steps), "dialect", h.exec.Dialect())

	result := NewResult(runID)
	for _, step := range scenario.Steps {
		sr := h.runStep(ctx, step)
		for _, msg := range checkStep(step, sr) {
			result.AddError(fmt.Sprintf("%s: %s", step.Name, msg))
		}
		logger.Debug("step complete", "step", step.Name, "op", step.Op, "error_code", sr.ErrorCode)
		result.Steps = append(result.Steps, sr)
	}

	logger.Info("scenario complete", "pass", result.Pass, "failures", len(result.Errors))
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, step Step) StepResult {
	sr := StepResult{Name: step.Name, Query: step.Query, Op: step.Op}

	q, err := h.builder.build(step.Query)
	if err == nil && step.Op == OpCount {
		q, err = q.ToCountQuery()
	}
	if err != nil {
		sr.ErrorCode = string(queryir.CodeOf(err))
		sr.Error = err.Error()
		return sr
	}
	sr.PrimaryKey = q.Base().PrimaryKey()
	sr.Warnings = queryir.Validate(q).Warnings

	for _, d := range querysql.Dialects {
		text, err := querysql.Render(q, d)
		if err != nil {
			sr.Error = fmt.Sprintf("render %s: %v", d, err)
			return sr
		}
		sr.Renders = append(sr.Renders, text)
	}
	if step.Op == OpRender {
		return sr
	}

	text, ok := sr.Render(h.exec.Dialect())
	if !ok {
		sr.Error = fmt.Sprintf("no render for executor dialect %s", h.exec.Dialect())
		return sr
	}

	switch step.Op {
	case OpRows:
		rows, err := h.exec.Rows(ctx, text)
		if err != nil {
			sr.recordExecution(err)
			return sr
		}
		sr.Rows = rows
		if sr.RowsFingerprint, err = ir.RowSetFingerprint(rows); err != nil {
			sr.Error = err.Error()
		}
	case OpCount:
		n, err := h.exec.Count(ctx, text)
		if err != nil {
			sr.recordExecution(err)
			return sr
		}
		sr.Count = &n
	}
	return sr
}

func (sr *StepResult) recordExecution(err error) {
	if store.IsExecutionFailed(err) {
		sr.ErrorCode = ErrCodeExecutionFailed
	}
	sr.Error = err.Error()
}
