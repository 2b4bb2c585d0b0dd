package resolve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/store"
	"github.com/roach88/syncbridge/internal/testutil"
)

func resolvedScenario(t *testing.T, share bool) (*ResolvedSyncState, *ResolvedSyncState) {
	t.Helper()
	low, high, err := Resolve(context.Background(), scenarioBatch(t), Options{
		Decision:            sidePtr(SideHigh),
		SharePrivateObjects: share,
	})
	require.NoError(t, err)
	return low, high
}

func TestResolvedSyncState_AddIsAppendOnly(t *testing.T) {
	s := NewResolvedSyncState(SideLow)
	nd := scenarioBatch(t)
	d := SyncDecision{Diff: nd.Batches[0].Diffs[0], Decision: SideHigh}

	s.AddSyncDecision(d)
	s.AddSyncDecision(d)
	assert.Len(t, s.Decisions, 2)
	assert.Equal(t, SideLow, s.Alias)
}

func TestResolvedSyncState_NewPermissions(t *testing.T) {
	low, _ := resolvedScenario(t, true)
	ds := testutil.Identity("ds")
	assert.Equal(t, []ir.ActionObjectPermission{
		ir.ReadGrant("a-job", ds),
		ir.ReadGrant("a-result", ds),
	}, low.NewPermissions())
}

func TestResolvedSyncState_RecordsMockPayload(t *testing.T) {
	low, _ := resolvedScenario(t, false)
	records := low.Records()
	require.Len(t, records, 3)

	res := records[2]
	assert.Equal(t, "a-result", res.ObjectID)
	assert.True(t, res.Mockify)
	assert.Equal(t, "high", res.Side)

	mocked, ok := res.Payload.(*ir.Result)
	require.True(t, ok)
	assert.Nil(t, mocked.Private)
	assert.Equal(t, ir.Map{"mean": ir.Null{}}, mocked.Public)
}

func TestResolvedSyncState_ApplyToStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "low.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	low, _ := resolvedScenario(t, false)
	require.NoError(t, low.Apply(ctx, s, "session-1"))
	// Applying twice is a no-op.
	require.NoError(t, low.Apply(ctx, s, "session-1"))

	grants, err := s.ReadGrants(ctx, "a-job")
	require.NoError(t, err)
	assert.Equal(t, []ir.ActionObjectPermission{ir.ReadGrant("a-job", testutil.Identity("ds"))}, grants)

	grants, err = s.ReadGrants(ctx, "a-result")
	require.NoError(t, err)
	assert.Empty(t, grants)

	applied, err := s.ReadAppliedDecisions(ctx, "session-1", "low")
	require.NoError(t, err)
	require.Len(t, applied, 3)
	assert.Equal(t, "a-result", applied[2].ObjectID)
	assert.True(t, applied[2].Mockify)
	assert.NotContains(t, applied[2].Payload, "private")
}
