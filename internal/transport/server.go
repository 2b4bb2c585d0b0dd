package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/project"
)

// EventHandler serves the frames of a session.
// *project.Service implements it.
type EventHandler interface {
	AddEvent(ctx context.Context, cred project.Credentials, ev ir.Event) error
	Sync(ctx context.Context, cred project.Credentials, projectID string, seqNo int) ([]ir.Event, error)
}

// Server accepts sessions from known peers and serves their frames.
type Server struct {
	Self    ir.Node
	Peers   PeerDirectory
	Handler EventHandler

	// Now defaults to time.Now; used for token validation.
	Now      func() time.Time
	Upgrader websocket.Upgrader
}

// ServeHTTP authenticates the bearer token, upgrades to a websocket and
// answers frames until the peer closes the session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	caller, err := VerifyToken(r.Context(), token, s.Self.VerifyKey, s.Peers, s.Now)
	if err != nil {
		slog.Warn("session rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Warn("session upgrade failed", "peer", caller.Short(), "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	cred := project.Session(s.Self, caller)
	slog.Debug("session accepted", "peer", caller.Short())

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("session ended", "peer", caller.Short(), "error", err)
			}
			return
		}

		var out reply
		switch f.Op {
		case OpAddEvent:
			if f.Event == nil {
				out = reply{Code: string(project.ErrCodeInvalidArgument), Error: "add_event frame without event"}
				break
			}
			err := s.Handler.AddEvent(ctx, cred, *f.Event)
			if err != nil {
				slog.Info("remote add_event rejected",
					"peer", caller.Short(),
					"project", f.Event.ProjectID,
					"seq", f.Event.SeqNo,
					"error", err,
				)
			}
			out = replyFor(err)
		case OpSync:
			events, err := s.Handler.Sync(ctx, cred, f.ProjectID, f.From)
			if err != nil {
				slog.Info("remote sync rejected",
					"peer", caller.Short(),
					"project", f.ProjectID,
					"from", f.From,
					"error", err,
				)
			}
			out = replyFor(err)
			if err == nil {
				out.Events = events
			}
		default:
			out = reply{Code: string(project.ErrCodeInvalidArgument), Error: "unknown op " + f.Op}
		}

		if err := conn.WriteJSON(out); err != nil {
			slog.Debug("session write failed", "peer", caller.Short(), "error", err)
			return
		}
	}
}
