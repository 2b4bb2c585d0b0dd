package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/project"
)

// Loopback is an in-process network. Nodes register their handler and each
// node gets a project.Network view from For.
type Loopback struct {
	mu       sync.RWMutex
	handlers map[ir.Identity]loopbackNode
	down     map[ir.Identity]bool
}

type loopbackNode struct {
	node    ir.Node
	handler EventHandler
}

func NewLoopback() *Loopback {
	return &Loopback{
		handlers: make(map[ir.Identity]loopbackNode),
		down:     make(map[ir.Identity]bool),
	}
}

// Register makes node reachable, delivering its sessions to h.
func (l *Loopback) Register(node ir.Node, h EventHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[node.VerifyKey] = loopbackNode{node: node, handler: h}
}

// SetDown marks a node unreachable (or reachable again).
func (l *Loopback) SetDown(key ir.Identity, down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.down[key] = down
}

// For returns the network as seen from self.
func (l *Loopback) For(self ir.Node) project.Network {
	return &loopbackView{l: l, self: self}
}

type loopbackView struct {
	l    *Loopback
	self ir.Node
}

func (v *loopbackView) ResolvePeer(_ context.Context, key ir.Identity) (ir.Node, error) {
	v.l.mu.RLock()
	defer v.l.mu.RUnlock()
	n, ok := v.l.handlers[key]
	if !ok {
		return ir.Node{}, fmt.Errorf("no loopback peer %s", key.Short())
	}
	return n.node, nil
}

func (v *loopbackView) OpenSession(_ context.Context, peer ir.Node) (project.RemoteHandle, error) {
	v.l.mu.RLock()
	defer v.l.mu.RUnlock()
	if v.l.down[peer.VerifyKey] {
		return nil, fmt.Errorf("loopback peer %s is down", peer)
	}
	n, ok := v.l.handlers[peer.VerifyKey]
	if !ok {
		return nil, fmt.Errorf("no loopback peer %s", peer)
	}
	return &loopbackHandle{
		handler: n.handler,
		cred:    project.Session(n.node, v.self.VerifyKey),
	}, nil
}

type loopbackHandle struct {
	handler EventHandler
	cred    project.Credentials
}

func (h *loopbackHandle) AddEvent(ctx context.Context, ev ir.Event) error {
	return h.handler.AddEvent(ctx, h.cred, ev)
}

func (h *loopbackHandle) Sync(ctx context.Context, projectID string, from int) ([]ir.Event, error) {
	return h.handler.Sync(ctx, h.cred, projectID, from)
}

func (h *loopbackHandle) Close() error { return nil }
