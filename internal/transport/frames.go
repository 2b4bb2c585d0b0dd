package transport

import (
	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/project"
)

// Session operations.
const (
	OpAddEvent = "add_event"
	OpSync     = "sync"
)

// frame is one request on a session. add_event carries Event; sync carries
// ProjectID and the zero-based From index.
type frame struct {
	Op        string    `json:"op"`
	Event     *ir.Event `json:"event,omitempty"`
	ProjectID string    `json:"project_id,omitempty"`
	From      int       `json:"from,omitempty"`
}

// reply answers exactly one frame. Error carries only the public message.
// Events is set on a successful sync.
type reply struct {
	OK     bool       `json:"ok"`
	Code   string     `json:"code,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Error  string     `json:"error,omitempty"`
	Events []ir.Event `json:"events,omitempty"`
}

func replyFor(err error) reply {
	if err == nil {
		return reply{OK: true}
	}
	r := reply{OK: false, Error: project.PublicMessage(err)}
	code := project.CodeOf(err)
	if code == "" {
		code = "INTERNAL"
	}
	r.Code = string(code)
	switch {
	case project.IsOutOfOrder(err):
		r.Reason = string(project.ReasonOutOfOrder)
	case project.IsSequenceGap(err):
		r.Reason = string(project.ReasonSequenceGap)
	}
	return r
}

// asError rebuilds the remote service error so predicates like
// project.IsSequenceGap work on the calling side.
func (r reply) asError() error {
	if r.OK {
		return nil
	}
	return &project.ServiceError{
		Code:    project.ErrorCode(r.Code),
		Reason:  project.SequenceReason(r.Reason),
		Message: r.Error,
	}
}
