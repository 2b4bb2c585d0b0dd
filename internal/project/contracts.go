package project

import (
	"context"

	"github.com/roach88/syncbridge/internal/ir"
)

// Credentials describe who is asking and where the request is served.
type Credentials struct {
	// Node is the verify key of the node serving the request.
	Node ir.Identity
	// NodeID is the serving node's id, matched against request targets.
	NodeID string
	// Caller is the authenticated identity making the request. For events
	// delivered by a broadcast session it is the sending leader node.
	Caller ir.Identity
	// Remote is set when Caller was authenticated by a peer session. A
	// follower takes leader events only from such credentials.
	Remote bool
}

// Local returns credentials for a node acting on its own behalf.
func Local(node ir.Node) Credentials {
	return Credentials{Node: node.VerifyKey, NodeID: node.ID, Caller: node.VerifyKey}
}

// Session returns the credentials a node serves a peer session with.
func Session(node ir.Node, peer ir.Identity) Credentials {
	return Credentials{Node: node.VerifyKey, NodeID: node.ID, Caller: peer, Remote: true}
}

// As returns a copy of c with a different caller. The override is a local
// act, so the result is never Remote.
func (c Credentials) As(caller ir.Identity) Credentials {
	c.Caller = caller
	c.Remote = false
	return c
}

// Stash persists projects.
//
// Update is a compare-and-swap: expectedLen is the number of events the
// caller's copy held when loaded. A concurrent writer makes it fail with an
// error wrapping store.ErrStaleProject.
type Stash interface {
	GetByUID(ctx context.Context, id string) (*ir.Project, error)
	GetByName(ctx context.Context, name string) (*ir.Project, error)
	GetAll(ctx context.Context) ([]*ir.Project, error)
	Set(ctx context.Context, p *ir.Project) error
	Update(ctx context.Context, p *ir.Project, expectedLen int) error
}

// Network resolves members to reachable peers and opens sessions to them.
type Network interface {
	ResolvePeer(ctx context.Context, verifyKey ir.Identity) (ir.Node, error)
	OpenSession(ctx context.Context, peer ir.Node) (RemoteHandle, error)
}

// RemoteHandle is an open session to a peer's project service.
type RemoteHandle interface {
	AddEvent(ctx context.Context, ev ir.Event) error
	// Sync reads the peer's log of projectID from the zero-based index from.
	Sync(ctx context.Context, projectID string, from int) ([]ir.Event, error)
	Close() error
}

// Notifier delivers inbox notifications.
type Notifier interface {
	Send(ctx context.Context, n ir.Notification) error
}
