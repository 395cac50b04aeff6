package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/hashicorp/go-version"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/queryir"
)

// SupportedFormats is the version constraint scenario files must satisfy.
const SupportedFormats = ">= 1.0, < 2.0"

// ErrCodeExecutionFailed is the expect_error code for engine rejections.
const ErrCodeExecutionFailed = "EXECUTION_FAILED"

// Step ops.
const (
	OpRender = "render"
	OpRows   = "rows"
	OpCount  = "count"
)

// Scenario defines a composition scenario.
type Scenario struct {
	// Format is the scenario file format version, e.g. "1.0".
	Format string `yaml:"format"`

	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Catalog is the path to the CUE catalog file, relative to the
	// scenario file location.
	Catalog string `yaml:"catalog"`

	// Fixtures maps table names to rows. Tables are seeded in name order.
	Fixtures map[string][]map[string]any `yaml:"fixtures,omitempty"`

	// Queries are composed lazily when a step first references them.
	Queries map[string]QuerySpec `yaml:"queries"`

	Steps []Step `yaml:"steps"`

	// RunID is an optional fixed run identifier for deterministic output.
	RunID string `yaml:"run_id,omitempty"`
}

// QuerySpec describes one named query.
type QuerySpec struct {
	// From names a catalog table. Exactly one of From and SubqueryOf is set.
	From string `yaml:"from,omitempty"`

	// SubqueryOf names another query to wrap as a derived relation.
	SubqueryOf string `yaml:"subquery_of,omitempty"`

	// Alias renames the base relation. Required for SubqueryOf.
	Alias string `yaml:"alias,omitempty"`

	Joins []JoinSpec `yaml:"joins,omitempty"`

	// Where maps columns to a scalar (equality) or a list (membership).
	Where map[string]any `yaml:"where,omitempty"`

	// DistinctOn is a comma-separated key column list.
	DistinctOn string `yaml:"distinct_on,omitempty"`

	// Order is an ordering list such as "t.a ASC, t.b DESC".
	Order string `yaml:"order,omitempty"`

	// InputIDs restricts the rows before distinct_on deduplicates them.
	InputIDs *[]any `yaml:"input_ids,omitempty"`

	// IDs restricts the result to these base primary keys. An empty list
	// is kept and matches nothing.
	IDs *[]any `yaml:"ids,omitempty"`

	Paginate *PageSpec `yaml:"paginate,omitempty"`
}

// JoinSpec joins a catalog table.
type JoinSpec struct {
	Table string `yaml:"table"`
	As    string `yaml:"as,omitempty"`

	// On is an equi-join condition. Inferred from the catalog when empty.
	On string `yaml:"on,omitempty"`

	// Cardinality is one_to_one, one_to_many or many_to_one. Only used
	// with On; inferred joins take it from the catalog.
	Cardinality string `yaml:"cardinality,omitempty"`
}

// PageSpec is a limit/offset window.
type PageSpec struct {
	Limit  int `yaml:"limit"`
	Offset int `yaml:"offset,omitempty"`
}

// Step runs one operation on a named query.
type Step struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
	Op    string `yaml:"op"`

	// ExpectError is a composition error code or EXECUTION_FAILED.
	ExpectError string `yaml:"expect_error,omitempty"`

	ExpectCount *int64 `yaml:"expect_count,omitempty"`

	// ExpectIDs are the base primary keys of the result rows, in order.
	ExpectIDs *[]any `yaml:"expect_ids,omitempty"`

	// ExpectRows compares only the listed columns of each row, in order.
	ExpectRows *[]map[string]any `yaml:"expect_rows,omitempty"`
}

var supportedFormats = version.MustConstraints(version.NewConstraint(SupportedFormats))

var knownErrorCodes = []string{
	string(queryir.ErrCodeInvalidJoin),
	string(queryir.ErrCodeInvalidProjection),
	string(queryir.ErrCodeUnsupportedOnDeduplicated),
	string(queryir.ErrCodeInvalidFilter),
	string(queryir.ErrCodeInvalidOrdering),
	string(queryir.ErrCodeInvalidRelation),
	string(queryir.ErrCodeCountQueryFinal),
	ErrCodeExecutionFailed,
}

// LoadScenario loads and validates a scenario from fs. The catalog path is
// resolved relative to the scenario file.
func LoadScenario(fs afero.Fs, path string) (*Scenario, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(fs, &scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns every .yaml/.yml file under dir, sorted.
func FindScenarios(fs afero.Fs, dir string) ([]string, error) {
	var paths []string
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	slices.Sort(paths)
	return paths, nil
}

func validateScenario(fs afero.Fs, s *Scenario) error {
	if err := checkFormat(s.Format); err != nil {
		return err
	}
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if ok, _ := afero.Exists(fs, s.Catalog); !ok {
		return fmt.Errorf("catalog file not found: %s", s.Catalog)
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries map is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, name := range sortedNames(s.Queries) {
		if err := validateQuery(s, name); err != nil {
			return err
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(s, i, step); err != nil {
			return err
		}
	}
	return nil
}

func checkFormat(format string) error {
	if format == "" {
		return fmt.Errorf("format is required")
	}
	v, err := version.NewVersion(format)
	if err != nil {
		return fmt.Errorf("format %q: %w", format, err)
	}
	if !supportedFormats.Check(v) {
		return fmt.Errorf("format %s is not supported (want %s)", format, SupportedFormats)
	}
	return nil
}

func validateQuery(s *Scenario, name string) error {
	q := s.Queries[name]
	switch {
	case q.From == "" && q.SubqueryOf == "":
		return fmt.Errorf("queries.%s: one of from or subquery_of is required", name)
	case q.From != "" && q.SubqueryOf != "":
		return fmt.Errorf("queries.%s: from and subquery_of are mutually exclusive", name)
	}
	if q.SubqueryOf != "" {
		if _, ok := s.Queries[q.SubqueryOf]; !ok {
			return fmt.Errorf("queries.%s: subquery_of references unknown query %q", name, q.SubqueryOf)
		}
		if q.Alias == "" {
			return fmt.Errorf("queries.%s: alias is required with subquery_of", name)
		}
	}
	for i, j := range q.Joins {
		if j.Table == "" {
			return fmt.Errorf("queries.%s.joins[%d]: table is required", name, i)
		}
		if j.Cardinality != "" && j.On == "" {
			return fmt.Errorf("queries.%s.joins[%d]: cardinality requires on", name, i)
		}
	}
	return nil
}

func validateStep(s *Scenario, index int, step Step) error {
	if step.Name == "" {
		return fmt.Errorf("steps[%d]: name is required", index)
	}
	if _, ok := s.Queries[step.Query]; !ok {
		return fmt.Errorf("steps[%d]: unknown query %q", index, step.Query)
	}
	switch step.Op {
	case OpRender, OpRows, OpCount:
	default:
		return fmt.Errorf("steps[%d]: op must be one of render, rows, count (got %q)", index, step.Op)
	}
	if step.ExpectError != "" && !slices.Contains(knownErrorCodes, step.ExpectError) {
		return fmt.Errorf("steps[%d]: unknown expect_error code %q", index, step.ExpectError)
	}
	if step.ExpectCount != nil && step.Op != OpCount {
		return fmt.Errorf("steps[%d]: expect_count requires op count", index)
	}
	if (step.ExpectIDs != nil || step.ExpectRows != nil) && step.Op != OpRows {
		return fmt.Errorf("steps[%d]: expect_ids and expect_rows require op rows", index)
	}
	return nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
