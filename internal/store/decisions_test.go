package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/testutil"
)

func TestApplyDecisions_WritesGrantsAndAudit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ds := testutil.Identity("ds")

	job := &ir.Job{ID: "j1", UserCodeID: "uc1", Status: "completed"}
	result := &ir.Result{ID: "r1", JobID: "j1", Private: ir.Map{"value": ir.Int(42)}}

	records := []ir.DecisionRecord{
		{ObjectID: "j1", ObjectType: ir.TypeJob, Side: "high", Grants: []ir.ActionObjectPermission{ir.ReadGrant("j1", ds)}, Payload: job},
		{ObjectID: "r1", ObjectType: ir.TypeResult, Side: "high", Mockify: true, Payload: result.Mock()},
		{ObjectID: "old", ObjectType: ir.TypeLog, Side: "high"},
	}
	require.NoError(t, s.ApplyDecisions(ctx, "sess-1", "low", records))

	grants, err := s.ReadGrants(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, []ir.ActionObjectPermission{ir.ReadGrant("j1", ds)}, grants)

	none, err := s.ReadGrants(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, none)

	applied, err := s.ReadAppliedDecisions(ctx, "sess-1", "low")
	require.NoError(t, err)
	require.Len(t, applied, 3)
	assert.Equal(t, "j1", applied[0].ObjectID)
	assert.False(t, applied[0].Mockify)
	assert.True(t, applied[1].Mockify)
	assert.NotContains(t, applied[1].Payload, "private")
	assert.Equal(t, "", applied[2].Payload)
}

func TestApplyDecisions_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ds := testutil.Identity("ds")

	records := []ir.DecisionRecord{
		{ObjectID: "j1", ObjectType: ir.TypeJob, Side: "high", Grants: []ir.ActionObjectPermission{ir.ReadGrant("j1", ds)}, Payload: &ir.Job{ID: "j1"}},
	}
	require.NoError(t, s.ApplyDecisions(ctx, "sess-1", "low", records))
	require.NoError(t, s.ApplyDecisions(ctx, "sess-1", "low", records))

	grants, err := s.ReadGrants(ctx, "j1")
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	applied, err := s.ReadAppliedDecisions(ctx, "sess-1", "low")
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}

func TestApplyDecisions_SidesKeptApart(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := []ir.DecisionRecord{{ObjectID: "uc1", ObjectType: ir.TypeUserCode, Side: "low", Payload: &ir.UserCode{ID: "uc1"}}}
	require.NoError(t, s.ApplyDecisions(ctx, "sess-1", "low", rec))
	require.NoError(t, s.ApplyDecisions(ctx, "sess-1", "high", rec))

	low, err := s.ReadAppliedDecisions(ctx, "sess-1", "low")
	require.NoError(t, err)
	high, err := s.ReadAppliedDecisions(ctx, "sess-1", "high")
	require.NoError(t, err)
	assert.Len(t, low, 1)
	assert.Len(t, high, 1)
}
