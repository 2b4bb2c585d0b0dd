package project

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/store"
	"github.com/roach88/syncbridge/internal/testutil"
)

// memStash is an in-memory Stash with the same compare-and-swap semantics as
// the SQLite store.
type memStash struct {
	mu       sync.Mutex
	projects map[string]*ir.Project
	// failUpdate, when set, is returned by Update instead of writing.
	failUpdate error
	updates    int
}

func newMemStash() *memStash {
	return &memStash{projects: make(map[string]*ir.Project)}
}

func (m *memStash) GetByUID(_ context.Context, id string) (*ir.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	return p.Clone(), nil
}

func (m *memStash) GetByName(_ context.Context, name string) (*ir.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.Name == name {
			return p.Clone(), nil
		}
	}
	return nil, fmt.Errorf("project %q: %w", name, store.ErrNotFound)
}

func (m *memStash) GetAll(_ context.Context) ([]*ir.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*ir.Project{}
	for _, p := range m.projects {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *memStash) Set(_ context.Context, p *ir.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.projects {
		if existing.ID == p.ID || existing.Name == p.Name {
			return store.ErrAlreadyExists
		}
	}
	m.projects[p.ID] = p.Clone()
	return nil
}

func (m *memStash) Update(_ context.Context, p *ir.Project, expectedLen int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	cur, ok := m.projects[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	if len(cur.Events) != expectedLen {
		return fmt.Errorf("stored %d, loaded %d: %w", len(cur.Events), expectedLen, store.ErrStaleProject)
	}
	m.projects[p.ID] = p.Clone()
	m.updates++
	return nil
}

// put stores p directly, bypassing the service.
func (m *memStash) put(p *ir.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p.Clone()
}

func (m *memStash) events(t *testing.T, id string) []ir.Event {
	t.Helper()
	p, err := m.GetByUID(context.Background(), id)
	require.NoError(t, err)
	return p.Events
}

// recordingNotifier records notifications and optionally fails.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []ir.Notification
	fail error
}

func (r *recordingNotifier) Send(_ context.Context, n ir.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, n)
	return nil
}

// cluster wires several in-process nodes together. Each node has its own
// stash and service; sessions call the target service directly with the
// sender as caller.
type cluster struct {
	nodes    map[ir.Identity]*clusterNode
	notifier *recordingNotifier
	// unreachable peers fail ResolvePeer; broken peers fail OpenSession.
	unreachable map[ir.Identity]bool
	broken      map[ir.Identity]bool
}

type clusterNode struct {
	node    ir.Node
	stash   *memStash
	service *Service
}

func newCluster(names ...string) *cluster {
	c := &cluster{
		nodes:       make(map[ir.Identity]*clusterNode),
		notifier:    &recordingNotifier{},
		unreachable: make(map[ir.Identity]bool),
		broken:      make(map[ir.Identity]bool),
	}
	roles := StaticRoles{
		Default:  RoleGuest,
		Assigned: map[ir.Identity]Role{testutil.Identity("ds"): RoleDataScientist},
	}
	for _, name := range names {
		n := testutil.Node(name)
		stash := newMemStash()
		c.nodes[n.VerifyKey] = &clusterNode{
			node:  n,
			stash: stash,
			service: New(stash, &clusterNetwork{c: c, self: n}, c.notifier, roles,
				WithClock(testutil.NewDeterministicClock()),
				WithNotificationIDs(&counterGenerator{prefix: "note-" + name})),
		}
	}
	return c
}

func (c *cluster) get(name string) *clusterNode {
	return c.nodes[testutil.Identity(name)]
}

// seed stores the same empty project, led by leader, on every node.
func (c *cluster) seed(id, leader string, members ...string) *ir.Project {
	nodes := make([]ir.Node, len(members))
	for i, m := range members {
		nodes[i] = testutil.Node(m)
	}
	p := &ir.Project{
		ID:              id,
		Name:            "project-" + id,
		CreatedBy:       testutil.Identity("ds"),
		StateSyncLeader: testutil.Node(leader),
		Members:         nodes,
		Users:           []ir.Identity{testutil.Identity("ds")},
		Events:          []ir.Event{},
	}
	for _, n := range c.nodes {
		n.stash.put(p)
	}
	return p
}

type clusterNetwork struct {
	c    *cluster
	self ir.Node
}

func (n *clusterNetwork) ResolvePeer(_ context.Context, key ir.Identity) (ir.Node, error) {
	target, ok := n.c.nodes[key]
	if !ok || n.c.unreachable[key] {
		return ir.Node{}, fmt.Errorf("peer %s: %w", key.Short(), store.ErrNotFound)
	}
	return target.node, nil
}

func (n *clusterNetwork) OpenSession(_ context.Context, peer ir.Node) (RemoteHandle, error) {
	if n.c.broken[peer.VerifyKey] {
		return nil, errors.New("dial: connection refused")
	}
	target := n.c.nodes[peer.VerifyKey]
	return &clusterHandle{
		target: target.service,
		cred:   Session(target.node, n.self.VerifyKey),
	}, nil
}

type clusterHandle struct {
	target *Service
	cred   Credentials
}

func (h *clusterHandle) AddEvent(ctx context.Context, ev ir.Event) error {
	return h.target.AddEvent(ctx, h.cred, ev)
}

func (h *clusterHandle) Sync(ctx context.Context, projectID string, from int) ([]ir.Event, error) {
	return h.target.Sync(ctx, h.cred, projectID, from)
}

func (h *clusterHandle) Close() error { return nil }

type counterGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (g *counterGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

func messageEvent(projectID string, seq int64) ir.Event {
	return ir.Event{
		ID:        fmt.Sprintf("%s-ev-%d", projectID, seq),
		ProjectID: projectID,
		SeqNo:     seq,
		Creator:   testutil.Identity("ds"),
		Timestamp: testutil.Epoch,
		Kind:      ir.KindMessage,
		Message:   &ir.MessagePayload{Text: fmt.Sprintf("hello %d", seq)},
	}
}
