package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type      string
	Expected  string
	Actual    string
	Decisions []DecisionTrace
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nDecisions:\n")
	for i, d := range e.Decisions {
		fmt.Fprintf(&buf, "  [%d] batch %d %s #%s %s side=%s mockify=%t grants=%d\n",
			i+1, d.Batch, d.ObjectType, d.ObjectID, d.Status, d.Side, d.Mockify, len(d.Grants))
	}
	return buf.String()
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertDecision:
		return assertDecision(r, a)
	case AssertDecisionCount:
		if len(r.Decisions) != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d decisions", a.Count),
				Actual: fmt.Sprintf("%d decisions", len(r.Decisions)), Decisions: r.Decisions}
		}
	case AssertSkippedBatches:
		if r.Skipped != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d skipped batches", a.Count),
				Actual: fmt.Sprintf("%d skipped batches", r.Skipped), Decisions: r.Decisions}
		}
	case AssertMockified:
		var got []string
		for _, d := range r.Decisions {
			if d.Mockify {
				got = append(got, d.ObjectID)
			}
		}
		return assertIDs(a, got, r.Decisions)
	case AssertGranted:
		var got []string
		for id := range r.Grants {
			got = append(got, id)
		}
		slices.Sort(got)
		return assertIDs(a, got, r.Decisions)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func assertDecision(r *Result, a Assertion) error {
	d, ok := r.decision(a.Object)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("a decision for %s", a.Object),
			Actual: "no decision", Decisions: r.Decisions}
	}
	if a.Side != "" && d.Side != a.Side {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s from %s side", a.Object, a.Side),
			Actual: fmt.Sprintf("%s side", d.Side), Decisions: r.Decisions}
	}
	if a.Mockify != nil && d.Mockify != *a.Mockify {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s mockify=%t", a.Object, *a.Mockify),
			Actual: fmt.Sprintf("mockify=%t", d.Mockify), Decisions: r.Decisions}
	}
	if a.Grants != nil && len(d.Grants) != *a.Grants {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s with %d grants", a.Object, *a.Grants),
			Actual: fmt.Sprintf("%d grants", len(d.Grants)), Decisions: r.Decisions}
	}
	return nil
}

func assertIDs(a Assertion, got []string, decisions []DecisionTrace) error {
	if got == nil {
		got = []string{}
	}
	if !slices.Equal(got, a.Objects) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%v", a.Objects),
			Actual: fmt.Sprintf("%v", got), Decisions: decisions}
	}
	return nil
}
