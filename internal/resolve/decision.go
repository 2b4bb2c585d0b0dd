package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/syncbridge/internal/diff"
	"github.com/roach88/syncbridge/internal/ir"
)

// Side names which state wins a batch.
type Side string

const (
	SideLow  Side = "low"
	SideHigh Side = "high"
)

// ParseSide accepts "low" or "high" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideLow:
		return SideLow, nil
	case SideHigh:
		return SideHigh, nil
	}
	return "", fmt.Errorf("invalid side %q: choose 'low' or 'high'", s)
}

// SyncDecision is the resolved outcome for one ObjectDiff.
type SyncDecision struct {
	Diff     *diff.ObjectDiff
	Decision Side
	// NewPermissionsLowSide are read grants to apply on the low side.
	NewPermissionsLowSide []ir.ActionObjectPermission
	// Mockify asks the receiving side to store a redacted placeholder.
	Mockify bool
}

// Errors raised for a batch that cannot be resolved. Any of them stops the
// whole resolution.
var (
	ErrTooManyGoverningObjects  = errors.New("too many governing objects")
	ErrUngovernedPrivateObjects = errors.New("unpublished private objects without governing code")
	ErrUngovernedJob            = errors.New("job without governing code")
)

// GoverningObjectError reports a batch rejected for its governing code.
type GoverningObjectError struct {
	Reason    error
	ObjectIDs []string
}

func (e *GoverningObjectError) Error() string {
	return fmt.Sprintf("resolve batch: %v: %s", e.Reason, strings.Join(e.ObjectIDs, ", "))
}

func (e *GoverningObjectError) Unwrap() error { return e.Reason }
