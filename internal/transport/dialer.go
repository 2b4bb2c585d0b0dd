package transport

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/project"
)

// Dialer is the websocket implementation of project.Network.
type Dialer struct {
	Self  ir.Node
	Key   ed25519.PrivateKey
	Peers PeerDirectory

	// TokenTTL defaults to DefaultTokenTTL.
	TokenTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// WS defaults to websocket.DefaultDialer.
	WS *websocket.Dialer
}

// ResolvePeer returns the registered peer for key. A peer without a route
// cannot be dialled and is reported as unresolved.
func (d *Dialer) ResolvePeer(ctx context.Context, key ir.Identity) (ir.Node, error) {
	peer, err := d.Peers.GetPeerByVerifyKey(ctx, key)
	if err != nil {
		return ir.Node{}, err
	}
	if peer.Route == "" {
		return ir.Node{}, fmt.Errorf("peer %s has no route", peer)
	}
	return peer, nil
}

// OpenSession dials peer.Route and authenticates with a bearer token
// addressed to the peer.
func (d *Dialer) OpenSession(ctx context.Context, peer ir.Node) (project.RemoteHandle, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	token, err := IssueToken(d.Key, d.Self.VerifyKey, peer.VerifyKey, now(), d.TokenTTL)
	if err != nil {
		return nil, err
	}

	ws := d.WS
	if ws == nil {
		ws = websocket.DefaultDialer
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := ws.DialContext(ctx, peer.Route, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", peer, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", peer, err)
	}
	slog.Debug("session opened", "peer", peer.String(), "route", peer.Route)
	return &session{conn: conn, peer: peer}, nil
}

// session is a client-side websocket session. Calls are serialised: each
// frame is answered by exactly one reply.
type session struct {
	mu   sync.Mutex
	conn *websocket.Conn
	peer ir.Node
}

func (s *session) AddEvent(ctx context.Context, ev ir.Event) error {
	r, err := s.call(ctx, frame{Op: OpAddEvent, Event: &ev})
	if err != nil {
		return err
	}
	return r.asError()
}

func (s *session) Sync(ctx context.Context, projectID string, from int) ([]ir.Event, error) {
	r, err := s.call(ctx, frame{Op: OpSync, ProjectID: projectID, From: from})
	if err != nil {
		return nil, err
	}
	if err := r.asError(); err != nil {
		return nil, err
	}
	if r.Events == nil {
		return []ir.Event{}, nil
	}
	return r.Events, nil
}

// call sends f and waits for its reply.
func (s *session) call(ctx context.Context, f frame) (reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
		s.conn.SetReadDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
		defer s.conn.SetReadDeadline(time.Time{})
	}

	if err := s.conn.WriteJSON(f); err != nil {
		return reply{}, fmt.Errorf("send %s to %s: %w", f.Op, s.peer, err)
	}
	var r reply
	if err := s.conn.ReadJSON(&r); err != nil {
		return reply{}, fmt.Errorf("read reply from %s: %w", s.peer, err)
	}
	return r, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
