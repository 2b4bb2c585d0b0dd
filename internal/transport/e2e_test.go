package transport

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/project"
	"github.com/roach88/syncbridge/internal/store"
	"github.com/roach88/syncbridge/internal/testutil"
)

type e2eNode struct {
	node    ir.Node
	store   *store.Store
	service *project.Service
}

func newE2ENode(t *testing.T, name string) *e2eNode {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	n := &e2eNode{node: testutil.Node(name), store: st}
	roles := project.StaticRoles{
		Default:  project.RoleGuest,
		Assigned: map[ir.Identity]project.Role{testutil.Identity("ds"): project.RoleDataScientist},
	}
	dialer := &Dialer{Self: n.node, Key: testutil.Key(name), Peers: st}
	n.service = project.New(project.StoreStash{Store: st}, dialer, project.StoreNotifier{Store: st}, roles)
	return n
}

func (n *e2eNode) serve(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(&Server{Self: n.node, Peers: n.store, Handler: n.service})
	t.Cleanup(srv.Close)
	n.node.Route = "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions"
}

func TestBroadcastOverWebsocket(t *testing.T) {
	ctx := context.Background()
	l, f := newE2ENode(t, "L"), newE2ENode(t, "F")
	l.serve(t)
	f.serve(t)

	require.NoError(t, l.store.PutPeer(ctx, f.node))
	require.NoError(t, f.store.PutPeer(ctx, l.node))

	ds := testutil.Identity("ds")
	sub := project.Submit{
		ID:          "p1",
		Name:        "alpha",
		Leader:      l.node,
		LeaderRoute: l.node.Route,
		Members:     []ir.Node{l.node, f.node},
		Users:       []ir.Identity{ds},
	}
	lp, err := l.service.CreateProject(ctx, project.Local(l.node).As(ds), sub)
	require.NoError(t, err)

	// F joins the same project; its leader route comes from its peer table.
	sub.LeaderRoute = ""
	fp, err := f.service.CreateProject(ctx, project.Local(f.node).As(ds), sub)
	require.NoError(t, err)
	assert.Equal(t, lp.StartHash, fp.StartHash)

	ev := ir.Event{
		ID:        "ev-1",
		ProjectID: "p1",
		SeqNo:     1,
		Creator:   ds,
		Timestamp: testutil.Epoch,
		Kind:      ir.KindRequest,
		Request:   &ir.RequestPayload{RequestID: "r1", ServerUID: f.node.ID, ServerVerifyKey: f.node.VerifyKey},
	}
	require.NoError(t, l.service.BroadcastEvent(ctx, project.Local(l.node).As(ds), ev))

	got, err := f.store.ReadEvents(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, []ir.Event{ev}, got)

	inbox, err := f.store.ReadNotifications(ctx, f.node.VerifyKey)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, l.node.VerifyKey, inbox[0].From)

	// Replaying the same seq is rejected by F and reported per peer.
	ev2 := ev
	ev2.ID = "ev-2"
	ev2.SeqNo = 2
	ev2.Kind = ir.KindMessage
	ev2.Request = nil
	ev2.Message = &ir.MessagePayload{Text: "second"}
	require.NoError(t, l.service.BroadcastEvent(ctx, project.Local(l.node).As(ds), ev2))

	err = f.service.AddEvent(ctx, project.Session(f.node, l.node.VerifyKey), ev2)
	assert.True(t, project.IsOutOfOrder(err))

	// Naming the leader locally does not stand in for its session.
	ev3 := ev2
	ev3.ID = "ev-3"
	ev3.SeqNo = 3
	err = f.service.AddEvent(ctx, project.Local(f.node).As(l.node.VerifyKey), ev3)
	assert.True(t, project.IsPermissionDenied(err))

	events, err := l.service.Sync(ctx, project.Local(l.node).As(ds), "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, []ir.Event{ev2}, events)
}

func TestFollowerCatchUpOverWebsocket(t *testing.T) {
	ctx := context.Background()
	l, f := newE2ENode(t, "L"), newE2ENode(t, "F")
	l.serve(t)
	f.serve(t)

	require.NoError(t, l.store.PutPeer(ctx, f.node))
	require.NoError(t, f.store.PutPeer(ctx, l.node))

	ds := testutil.Identity("ds")
	sub := project.Submit{
		ID:          "p1",
		Name:        "alpha",
		Leader:      l.node,
		LeaderRoute: l.node.Route,
		Members:     []ir.Node{l.node, f.node},
		Users:       []ir.Identity{ds},
	}
	_, err := l.service.CreateProject(ctx, project.Local(l.node).As(ds), sub)
	require.NoError(t, err)
	sub.LeaderRoute = ""
	_, err = f.service.CreateProject(ctx, project.Local(f.node).As(ds), sub)
	require.NoError(t, err)

	text := func(seq int64) ir.Event {
		return ir.Event{
			ID:        fmt.Sprintf("ev-%d", seq),
			ProjectID: "p1",
			SeqNo:     seq,
			Creator:   ds,
			Timestamp: testutil.Epoch,
			Kind:      ir.KindMessage,
			Message:   &ir.MessagePayload{Text: fmt.Sprintf("message %d", seq)},
		}
	}
	leader := project.Local(l.node).As(ds)

	require.NoError(t, l.service.BroadcastEvent(ctx, leader, text(1)))
	// Appended on the leader only, so F falls behind.
	require.NoError(t, l.service.AddEvent(ctx, project.Local(l.node), text(2)))

	err = l.service.BroadcastEvent(ctx, leader, text(3))
	var bErr *project.BroadcastError
	require.ErrorAs(t, err, &bErr)
	assert.True(t, project.IsSequenceGap(bErr.Cause.Err))

	added, err := f.service.CatchUp(ctx, project.Local(f.node), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	require.NoError(t, l.service.BroadcastEvent(ctx, leader, text(4)))

	want, err := l.store.ReadEvents(ctx, "p1", 0)
	require.NoError(t, err)
	got, err := f.store.ReadEvents(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, want, got)

	state, err := f.store.VerifyLog(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, state.Contiguous)
}
