package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/syncbridge/internal/ir"
)

// goldenView is the part of a Result pinned by golden files.
func goldenView(name string, r *Result) map[string]any {
	decisions := make([]any, len(r.Decisions))
	for i, d := range r.Decisions {
		grants := make([]any, len(d.Grants))
		for j, g := range d.Grants {
			grants[j] = g
		}
		decisions[i] = map[string]any{
			"batch":       d.Batch,
			"object_id":   d.ObjectID,
			"object_type": d.ObjectType,
			"status":      d.Status,
			"side":        d.Side,
			"mockify":     d.Mockify,
			"grants":      grants,
		}
	}
	view := map[string]any{
		"scenario_name":   name,
		"decisions":       decisions,
		"skipped_batches": r.Skipped,
	}
	if r.ResolveError != "" {
		view["error"] = r.ResolveError
	}
	return view
}

// GoldenBytes renders the pinned part of result as canonical JSON.
func GoldenBytes(name string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(goldenView(name, result))
}

// RunWithGolden runs scenario and compares its decisions, as canonical
// JSON, against testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := GoldenBytes(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
