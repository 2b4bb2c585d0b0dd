package harness

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/syncbridge/internal/diff"
	"github.com/roach88/syncbridge/internal/resolve"
	"github.com/roach88/syncbridge/internal/snapshot"
	"github.com/roach88/syncbridge/internal/store"
)

// Run executes a scenario and returns the result.
//
// Each run applies its decisions to a fresh in-memory database. The
// returned error is reserved for setup failures (unreadable snapshots, a
// broken store); resolution errors are part of the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	low, err := snapshot.Load(scenario.Low)
	if err != nil {
		return nil, err
	}
	high, err := snapshot.Load(scenario.High)
	if err != nil {
		return nil, err
	}
	nd, err := diff.Compute(low, high)
	if err != nil {
		return nil, fmt.Errorf("compute diff: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	script := &resolve.Scripted{Answers: scenario.Answers}
	for _, s := range scenario.Sides {
		side, _ := resolve.ParseSide(s)
		script.Sides = append(script.Sides, side)
	}
	var out bytes.Buffer
	opts := resolve.Options{
		SharePrivateObjects: scenario.SharePrivateObjects,
		Provider:            script,
		Out:                 &out,
	}
	if scenario.Decision != "" {
		side, _ := resolve.ParseSide(scenario.Decision)
		opts.Decision = &side
	}

	result := NewResult()
	for _, b := range nd.Batches {
		if b.AllSame() {
			result.Skipped++
		}
	}

	resolvedLow, _, err := resolve.Resolve(ctx, nd, opts)
	result.Output = out.String()
	if err != nil {
		switch {
		case scenario.ExpectError == "":
			result.AddError(fmt.Sprintf("resolve: %v", err))
		case !strings.Contains(err.Error(), scenario.ExpectError):
			result.AddError(fmt.Sprintf("resolve error %q does not contain %q", err, scenario.ExpectError))
		default:
			result.ResolveError = scenario.ExpectError
		}
		return result, nil
	}
	if scenario.ExpectError != "" {
		result.AddError(fmt.Sprintf("expected resolve error containing %q, got none", scenario.ExpectError))
	}

	batchOf := make(map[*diff.ObjectDiff]int)
	for i, b := range nd.Batches {
		for _, d := range b.Diffs {
			batchOf[d] = i + 1
		}
	}
	for _, dec := range resolvedLow.Decisions {
		grants := []string{}
		for _, g := range dec.NewPermissionsLowSide {
			grants = append(grants, fmt.Sprintf("%s:%s", g.Permission, g.Credentials))
		}
		result.Decisions = append(result.Decisions, DecisionTrace{
			Batch:      batchOf[dec.Diff],
			ObjectID:   dec.Diff.ObjectID,
			ObjectType: dec.Diff.ObjectType,
			Status:     string(dec.Diff.Status),
			Side:       string(dec.Decision),
			Mockify:    dec.Mockify,
			Grants:     grants,
		})
	}

	if err := resolvedLow.Apply(ctx, st, scenario.Name); err != nil {
		return nil, fmt.Errorf("apply low side: %w", err)
	}
	for _, dec := range resolvedLow.Decisions {
		stored, err := st.ReadGrants(ctx, dec.Diff.ObjectID)
		if err != nil {
			return nil, err
		}
		for _, g := range stored {
			result.Grants[g.ObjectID] = append(result.Grants[g.ObjectID], fmt.Sprintf("%s:%s", g.Permission, g.Credentials))
		}
	}
	slog.Debug("scenario resolved", "scenario", scenario.Name, "decisions", len(result.Decisions), "skipped", result.Skipped)

	for _, a := range scenario.Assertions {
		if err := evaluate(result, a); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}
