package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/syncbridge/internal/ir"
)

// ServiceError is the error type returned across the project service
// boundary.
//
// Message is public: it is safe to show to a remote caller and never carries
// internals. Err holds the underlying cause for logs and is reachable
// through errors.Unwrap.
type ServiceError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Reason refines SEQUENCE_VIOLATION errors.
	Reason SequenceReason

	// Message is the public, non-leaking description.
	Message string

	// ProjectID identifies the affected project, if any.
	ProjectID string

	// Peer names the offending peer for PEER_UNREACHABLE and
	// REMOTE_SESSION_FAILED.
	Peer string

	// Err is the internal cause. Not included in Error().
	Err error
}

// ErrorCode categorizes service errors.
type ErrorCode string

const (
	// ErrCodePermissionDenied indicates the serving node is not the leader or
	// the caller lacks project permission.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrCodeSequenceViolation indicates an event seq_no is not the single
	// legal next value.
	ErrCodeSequenceViolation ErrorCode = "SEQUENCE_VIOLATION"

	// ErrCodePeerUnreachable indicates a member could not be resolved to a
	// known network peer.
	ErrCodePeerUnreachable ErrorCode = "PEER_UNREACHABLE"

	// ErrCodeRemoteSessionFailed indicates a session to a resolved peer could
	// not be opened or the remote add_event call failed.
	ErrCodeRemoteSessionFailed ErrorCode = "REMOTE_SESSION_FAILED"

	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists      ErrorCode = "ALREADY_EXISTS"
	ErrCodeInvalidArgument    ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNotificationFailed ErrorCode = "NOTIFICATION_FAILED"
)

// SequenceReason distinguishes the two ways a seq_no can be wrong.
type SequenceReason string

const (
	ReasonOutOfOrder  SequenceReason = "OUT_OF_ORDER"
	ReasonSequenceGap SequenceReason = "SEQUENCE_GAP"
)

// Error implements the error interface. Only public fields are rendered.
func (e *ServiceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s(%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the internal cause.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

func codeOf(err error) (ErrorCode, SequenceReason, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code, se.Reason, true
	}
	return "", "", false
}

// IsPermissionDenied returns true if err is a PERMISSION_DENIED error.
// Uses errors.As to handle wrapped errors.
func IsPermissionDenied(err error) bool {
	code, _, ok := codeOf(err)
	return ok && code == ErrCodePermissionDenied
}

// IsSequenceViolation returns true for both out-of-order and gap errors.
func IsSequenceViolation(err error) bool {
	code, _, ok := codeOf(err)
	return ok && code == ErrCodeSequenceViolation
}

// IsOutOfOrder returns true if err is a sequence violation because the
// seq_no was already used.
func IsOutOfOrder(err error) bool {
	code, reason, ok := codeOf(err)
	return ok && code == ErrCodeSequenceViolation && reason == ReasonOutOfOrder
}

// IsSequenceGap returns true if err is a sequence violation because the
// seq_no skips ahead.
func IsSequenceGap(err error) bool {
	code, reason, ok := codeOf(err)
	return ok && code == ErrCodeSequenceViolation && reason == ReasonSequenceGap
}

// IsNotFound returns true if err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	code, _, ok := codeOf(err)
	return ok && code == ErrCodeNotFound
}

// CodeOf returns the service error code carried by err, or "" if err is not
// a ServiceError.
func CodeOf(err error) ErrorCode {
	code, _, _ := codeOf(err)
	return code
}

// PublicMessage returns the message safe to send to a remote caller.
func PublicMessage(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal error"
}

func newPermissionDenied(projectID, msg string) *ServiceError {
	return &ServiceError{Code: ErrCodePermissionDenied, Message: msg, ProjectID: projectID}
}

func newOutOfOrder(p *ir.Project, seq int64) *ServiceError {
	return &ServiceError{
		Code:      ErrCodeSequenceViolation,
		Reason:    ReasonOutOfOrder,
		Message:   "Project events are out of sync",
		ProjectID: p.ID,
		Err:       fmt.Errorf("seq_no %d already used, log has %d events", seq, len(p.Events)),
	}
}

func newSequenceGap(p *ir.Project, seq int64) *ServiceError {
	return &ServiceError{
		Code:      ErrCodeSequenceViolation,
		Reason:    ReasonSequenceGap,
		Message:   "Project events are out of order!",
		ProjectID: p.ID,
		Err:       fmt.Errorf("seq_no %d skips ahead of next %d", seq, p.NextSeq()),
	}
}

func newNotFound(projectID, msg string, cause error) *ServiceError {
	return &ServiceError{Code: ErrCodeNotFound, Message: msg, ProjectID: projectID, Err: cause}
}

func newInvalidArgument(msg string) *ServiceError {
	return &ServiceError{Code: ErrCodeInvalidArgument, Message: msg}
}

// BroadcastError reports a broadcast that stopped at the first failing peer.
//
// The leader's local append has already been persisted when this is
// returned. Delivered peers hold the event; Failed and NotAttempted do not
// and catch up with Service.CatchUp, which reads the leader's Sync. There
// is no rollback.
type BroadcastError struct {
	ProjectID    string
	SeqNo        int64
	Delivered    []ir.Node
	Failed       ir.Node
	NotAttempted []ir.Node
	// Cause is the ServiceError for the failed peer.
	Cause *ServiceError
}

func (e *BroadcastError) Error() string {
	names := func(nodes []ir.Node) string {
		if len(nodes) == 0 {
			return "none"
		}
		parts := make([]string, len(nodes))
		for i, n := range nodes {
			parts[i] = n.String()
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("broadcast of event #%d stopped at %s: %s (delivered=%s, not_attempted=%s)",
		e.SeqNo, e.Failed, e.Cause.Error(), names(e.Delivered), names(e.NotAttempted))
}

// Unwrap returns the per-peer ServiceError so predicates and CodeOf see it.
func (e *BroadcastError) Unwrap() error {
	return e.Cause
}

// Behind lists every peer that did not receive the event.
func (e *BroadcastError) Behind() []ir.Node {
	out := make([]ir.Node, 0, 1+len(e.NotAttempted))
	out = append(out, e.Failed)
	return append(out, e.NotAttempted...)
}
