package resolve

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/syncbridge/internal/diff"
	"github.com/roach88/syncbridge/internal/ir"
)

// ResolveBatch derives one SyncDecision per diff of batch, all with the
// given side.
//
// Private diffs are those whose high object is privately scoped. They are
// all shared when sharePrivate is set; otherwise provider picks which ones.
// With no provider nothing is shared. Jobs always receive a read grant for
// the governing code's user.
func ResolveBatch(ctx context.Context, batch *diff.ObjectDiffBatch, side Side, sharePrivate bool, provider DecisionProvider) ([]SyncDecision, error) {
	var private []*diff.ObjectDiff
	var governing []*ir.UserCode
	var governingIDs []string
	for _, d := range batch.Diffs {
		if d.HighObj == nil {
			continue
		}
		if d.HighObj.IsPrivatelyScoped() {
			private = append(private, d)
		}
		if uc, ok := d.HighObj.(*ir.UserCode); ok {
			governing = append(governing, uc)
			governingIDs = append(governingIDs, uc.ID)
		}
	}

	if len(governing) > 1 {
		return nil, &GoverningObjectError{Reason: ErrTooManyGoverningObjects, ObjectIDs: governingIDs}
	}
	var code *ir.UserCode
	if len(governing) == 1 {
		code = governing[0]
	}
	if code == nil && len(private) > 0 {
		return nil, &GoverningObjectError{Reason: ErrUngovernedPrivateObjects, ObjectIDs: diffIDs(private)}
	}

	var shared []*diff.ObjectDiff
	switch {
	case sharePrivate:
		shared = private
	case len(private) > 0 && provider != nil:
		var err error
		shared, err = provider.DecidePrivateSharing(ctx, code.UserVerifyKey, private)
		if err != nil {
			return nil, fmt.Errorf("private sharing: %w", err)
		}
	}

	out := make([]SyncDecision, 0, len(batch.Diffs))
	for _, d := range batch.Diffs {
		isPrivate := slices.Contains(private, d)
		isShared := slices.Contains(shared, d)

		dec := SyncDecision{Diff: d, Decision: side}
		switch {
		case d.ObjectType == ir.TypeJob:
			if code == nil {
				return nil, &GoverningObjectError{Reason: ErrUngovernedJob, ObjectIDs: []string{d.ObjectID}}
			}
			dec.NewPermissionsLowSide = []ir.ActionObjectPermission{ir.ReadGrant(d.ObjectID, code.UserVerifyKey)}
		case isPrivate && isShared:
			dec.NewPermissionsLowSide = []ir.ActionObjectPermission{ir.ReadGrant(d.ObjectID, code.UserVerifyKey)}
		case isPrivate:
			dec.Mockify = true
		}
		out = append(out, dec)
	}
	return out, nil
}

func diffIDs(diffs []*diff.ObjectDiff) []string {
	ids := make([]string, len(diffs))
	for i, d := range diffs {
		ids[i] = d.ObjectID
	}
	return ids
}
