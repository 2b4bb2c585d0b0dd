package resolve

import (
	"context"

	"github.com/roach88/syncbridge/internal/ir"
)

// ResolvedSyncState accumulates the decisions to apply to one side.
// It is append-only and does no conflict detection; the applier is
// responsible for idempotence.
type ResolvedSyncState struct {
	Alias     Side
	Decisions []SyncDecision
}

func NewResolvedSyncState(alias Side) *ResolvedSyncState {
	return &ResolvedSyncState{Alias: alias, Decisions: []SyncDecision{}}
}

func (s *ResolvedSyncState) AddSyncDecision(d SyncDecision) {
	s.Decisions = append(s.Decisions, d)
}

// NewPermissions flattens every decision's grants in decision order.
func (s *ResolvedSyncState) NewPermissions() []ir.ActionObjectPermission {
	out := []ir.ActionObjectPermission{}
	for _, d := range s.Decisions {
		out = append(out, d.NewPermissionsLowSide...)
	}
	return out
}

// MockifiedIDs lists the ids of decisions marked mockify, in order.
func (s *ResolvedSyncState) MockifiedIDs() []string {
	out := []string{}
	for _, d := range s.Decisions {
		if d.Mockify {
			out = append(out, d.Diff.ObjectID)
		}
	}
	return out
}

// Records converts the decisions into storage records. The payload is the
// winning side's object, replaced by its mock when the decision says so.
func (s *ResolvedSyncState) Records() []ir.DecisionRecord {
	out := make([]ir.DecisionRecord, 0, len(s.Decisions))
	for _, d := range s.Decisions {
		obj := d.Diff.HighObj
		if d.Decision == SideLow {
			obj = d.Diff.LowObj
		}
		if obj != nil && d.Mockify {
			obj = obj.Mock()
		}
		out = append(out, ir.DecisionRecord{
			ObjectID:   d.Diff.ObjectID,
			ObjectType: d.Diff.ObjectType,
			Side:       string(d.Decision),
			Mockify:    d.Mockify,
			Grants:     d.NewPermissionsLowSide,
			Payload:    obj,
		})
	}
	return out
}

// Applier is the storage hand-off for a resolved state.
type Applier interface {
	ApplyDecisions(ctx context.Context, session, alias string, records []ir.DecisionRecord) error
}

// Apply hands s to a storage applier under the given session id.
func (s *ResolvedSyncState) Apply(ctx context.Context, a Applier, session string) error {
	return a.ApplyDecisions(ctx, session, string(s.Alias), s.Records())
}
