package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a result as deterministic text: per step, the error
// code or the query text for every dialect, then warnings and what
// execution returned. Run IDs and error messages are left out.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)

	for _, s := range result.Steps {
		fmt.Fprintf(&b, "\nstep: %s\n", s.Name)
		fmt.Fprintf(&b, "op: %s %s\n", s.Op, s.Query)
		if s.ErrorCode != "" {
			fmt.Fprintf(&b, "error: %s\n", s.ErrorCode)
		}
		for _, text := range s.Renders {
			fmt.Fprintf(&b, "-- %s\n%s\n", text.Dialect, text)
		}
		for _, w := range s.Warnings {
			fmt.Fprintf(&b, "warning: %s\n", w)
		}
		if s.Count != nil {
			fmt.Fprintf(&b, "count: %d\n", *s.Count)
		}
		if s.Op == OpRows && s.ErrorCode == "" && s.Error == "" {
			if len(s.Rows) == 0 {
				b.WriteString("rows: none\n")
			} else {
				b.WriteString("rows:\n")
				for _, r := range s.Rows {
					fmt.Fprintf(&b, "  %s\n", r)
				}
			}
		}
	}
	return []byte(b.String())
}

// GoldenDir is the directory, next to the scenario files, that holds
// golden snapshots.
const GoldenDir = "golden"

// GoldenPath returns the golden file for a scenario loaded from
// scenarioFile: {scenario dir}/golden/{name}.golden.
func GoldenPath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), GoldenDir, name+".golden")
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/scenarios/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if the scenario cannot run. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares a result snapshot against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", "scenarios", GoldenDir)),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
