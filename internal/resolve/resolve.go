package resolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/syncbridge/internal/diff"
	"github.com/roach88/syncbridge/internal/ir"
)

// DecisionProvider supplies the choices Resolve cannot make alone.
type DecisionProvider interface {
	// DecideBatch picks the winning side for a changed batch.
	DecideBatch(ctx context.Context, batch *diff.ObjectDiffBatch) (Side, error)
	// DecidePrivateSharing returns the subset of candidates to share with user.
	DecidePrivateSharing(ctx context.Context, user ir.Identity, candidates []*diff.ObjectDiff) ([]*diff.ObjectDiff, error)
}

// Options control a Resolve call.
type Options struct {
	// Decision, when set, is used for every batch and no side is asked for.
	Decision            *Side
	SharePrivateObjects bool
	Provider            DecisionProvider
	// Out receives progress lines. Nil discards them.
	Out io.Writer
}

// Resolve walks nd's batches in order and returns the low and high
// accumulators. Batches where every diff is SAME are skipped without asking
// anything. The first batch error stops the call.
func Resolve(ctx context.Context, nd *diff.NodeDiff, opts Options) (*ResolvedSyncState, *ResolvedSyncState, error) {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	low := NewResolvedSyncState(SideLow)
	high := NewResolvedSyncState(SideHigh)

	for i, batch := range nd.Batches {
		if batch.AllSame() {
			slog.Debug("skipping unchanged batch", "batch", i+1, "objects", batch.Len())
			continue
		}
		fmt.Fprint(out, batch.String())

		var side Side
		switch {
		case opts.Decision != nil:
			side = *opts.Decision
		case opts.Provider != nil:
			var err error
			if side, err = opts.Provider.DecideBatch(ctx, batch); err != nil {
				return nil, nil, fmt.Errorf("batch %d: %w", i+1, err)
			}
		default:
			return nil, nil, fmt.Errorf("batch %d: no side decision and no decision provider", i+1)
		}

		decisions, err := ResolveBatch(ctx, batch, side, opts.SharePrivateObjects, opts.Provider)
		if err != nil {
			return nil, nil, fmt.Errorf("batch %d: %w", i+1, err)
		}
		fmt.Fprintf(out, "Decision: Syncing %d objects from %s side\n", batch.Len(), side)

		for _, dec := range decisions {
			low.AddSyncDecision(dec)
			high.AddSyncDecision(dec)
		}
		slog.Debug("resolved batch", "batch", i+1, "side", string(side), "decisions", len(decisions))
		fmt.Fprintf(out, "\n%s\n\n", strings.Repeat("=", 100))
	}
	return low, high, nil
}
