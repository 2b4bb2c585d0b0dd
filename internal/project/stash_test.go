package project

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

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "node.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreStash_CreateAndAppend(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	leader := testutil.Node("L")
	roles := StaticRoles{Default: RoleGuest, Assigned: map[ir.Identity]Role{testutil.Identity("ds"): RoleDataScientist}}

	svc := New(StoreStash{Store: st}, &clusterNetwork{c: newCluster()}, StoreNotifier{Store: st}, roles,
		WithIDGenerator(NewFixedGenerator("proj-1")),
		WithNotificationIDs(NewFixedGenerator("01HZZZZZZZZZZZZZZZZZZZZZZZ")),
		WithClock(testutil.NewDeterministicClock()))

	p, err := svc.CreateProject(ctx, Local(leader).As(testutil.Identity("ds")), Submit{
		Name:        "alpha",
		Leader:      leader,
		LeaderRoute: "ws://l.example/sessions",
		Users:       []ir.Identity{testutil.Identity("ds")},
	})
	require.NoError(t, err)
	assert.Equal(t, "proj-1", p.ID)

	ev := requestEvent("proj-1", 1, leader)
	require.NoError(t, svc.AddEvent(ctx, Local(leader), ev))

	stored, err := st.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, []ir.Event{ev}, stored.Events)
	assert.Equal(t, p.StartHash, stored.StartHash)

	inbox, err := st.ReadNotifications(ctx, leader.VerifyKey)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "A new request has been added to the project alpha", inbox[0].Subject)

	state, err := st.VerifyLog(ctx, "proj-1")
	require.NoError(t, err)
	assert.True(t, state.Contiguous)
}

// The store files events by seq_no, so a leader append whose seq_no is off
// its append position would reload out of order.
func TestStoreStash_LeaderSeqFollowsAppendPosition(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	leader := testutil.Node("L")
	ds := testutil.Identity("ds")
	roles := StaticRoles{Default: RoleGuest, Assigned: map[ir.Identity]Role{ds: RoleDataScientist}}
	svc := New(StoreStash{Store: st}, &clusterNetwork{c: newCluster()}, StoreNotifier{Store: st}, roles,
		WithIDGenerator(NewFixedGenerator("proj-1")))

	_, err := svc.CreateProject(ctx, Local(leader).As(ds), Submit{
		Name:        "alpha",
		Leader:      leader,
		LeaderRoute: "ws://l.example/sessions",
		Users:       []ir.Identity{ds},
	})
	require.NoError(t, err)

	require.NoError(t, svc.AddEvent(ctx, Local(leader), messageEvent("proj-1", 1)))

	err = svc.AddEvent(ctx, Local(leader), messageEvent("proj-1", 5))
	assert.True(t, IsSequenceGap(err))

	require.NoError(t, svc.BroadcastEvent(ctx, Local(leader).As(ds), messageEvent("proj-1", 2)))

	unnumbered := messageEvent("proj-1", 0)
	unnumbered.ID = "unnumbered"
	require.NoError(t, svc.AddEvent(ctx, Local(leader), unnumbered))

	stored, err := st.ReadEvents(ctx, "proj-1", 0)
	require.NoError(t, err)
	ids := make([]string, len(stored))
	for i, ev := range stored {
		ids[i] = ev.ID
		assert.Equal(t, int64(i+1), ev.SeqNo)
	}
	assert.Equal(t, []string{"proj-1-ev-1", "proj-1-ev-2", "unnumbered"}, ids)

	state, err := st.VerifyLog(ctx, "proj-1")
	require.NoError(t, err)
	assert.True(t, state.Contiguous)
	assert.Empty(t, state.Gaps)

	tail, err := svc.Sync(ctx, Local(leader), "proj-1", 1)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "proj-1-ev-2", tail[0].ID)
}

func TestStoreStash_DuplicateNameIsAlreadyExists(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	leader := testutil.Node("L")
	roles := StaticRoles{Default: RoleDataScientist}
	svc := New(StoreStash{Store: st}, &clusterNetwork{c: newCluster()}, StoreNotifier{Store: st}, roles)

	sub := Submit{Name: "alpha", Leader: leader, LeaderRoute: "ws://l.example/sessions"}
	_, err := svc.CreateProject(ctx, Local(leader), sub)
	require.NoError(t, err)

	_, err = svc.CreateProject(ctx, Local(leader), sub)
	assert.Equal(t, ErrCodeAlreadyExists, CodeOf(err))
}
