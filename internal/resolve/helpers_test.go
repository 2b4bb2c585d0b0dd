package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/syncbridge/internal/diff"
	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/testutil"
)

// codeJobResult builds a user code, its job and a private result.
func codeJobResult(prefix string) (*ir.UserCode, *ir.Job, *ir.Result) {
	uc := &ir.UserCode{
		ID:            prefix + "-code",
		UserVerifyKey: testutil.Identity("ds"),
		ServiceFunc:   "train",
		Status:        "approved",
	}
	job := &ir.Job{ID: prefix + "-job", UserCodeID: uc.ID, Status: "completed"}
	res := &ir.Result{
		ID:      prefix + "-result",
		JobID:   job.ID,
		Public:  ir.Map{"mean": ir.Null{}},
		Private: ir.Map{"mean": ir.Int(7)},
	}
	return uc, job, res
}

func compute(t *testing.T, low, high []ir.Object) *diff.NodeDiff {
	t.Helper()
	nd, err := diff.Compute(
		&diff.SyncState{Alias: "low", NodeName: "low", Objects: low},
		&diff.SyncState{Alias: "high", NodeName: "high", Objects: high},
	)
	require.NoError(t, err)
	return nd
}

// scenarioBatch is a single batch: code SAME, job NEW, private result NEW.
func scenarioBatch(t *testing.T) *diff.NodeDiff {
	t.Helper()
	uc, job, res := codeJobResult("a")
	nd := compute(t, []ir.Object{uc}, []ir.Object{uc, job, res})
	require.Len(t, nd.Batches, 1)
	return nd
}

func byID(decisions []SyncDecision) map[string]SyncDecision {
	out := make(map[string]SyncDecision, len(decisions))
	for _, d := range decisions {
		out[d.Diff.ObjectID] = d
	}
	return out
}

// failingProvider fails the test if it is asked anything.
type failingProvider struct{ t *testing.T }

func (f failingProvider) DecideBatch(context.Context, *diff.ObjectDiffBatch) (Side, error) {
	f.t.Fatal("DecideBatch must not be called")
	return "", errors.New("unreachable")
}

func (f failingProvider) DecidePrivateSharing(context.Context, ir.Identity, []*diff.ObjectDiff) ([]*diff.ObjectDiff, error) {
	f.t.Fatal("DecidePrivateSharing must not be called")
	return nil, errors.New("unreachable")
}

func sidePtr(s Side) *Side { return &s }
