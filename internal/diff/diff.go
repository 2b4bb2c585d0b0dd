package diff

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/syncbridge/internal/ir"
)

// Status classifies one object's comparison result.
type Status string

const (
	StatusSame     Status = "SAME"
	StatusNew      Status = "NEW"
	StatusModified Status = "MODIFIED"
	StatusDeleted  Status = "DELETED"
)

// SyncState is one side's snapshot of shared objects.
type SyncState struct {
	// Alias is "low" or "high".
	Alias    string
	NodeName string
	Objects  []ir.Object
	// Tracked lists ids this side has synced before. An object missing from
	// a side that tracked it was deleted there rather than never seen.
	Tracked []string
}

// ObjectDiff is one object's comparison between the two sides.
type ObjectDiff struct {
	ObjectID   string
	ObjectType string
	Status     Status
	LowObj     ir.Object
	HighObj    ir.Object
	LowDigest  string
	HighDigest string

	depth int
}

// Depth is the object's dependency depth within its batch: 0 for objects
// that reference nothing else in the batch.
func (d *ObjectDiff) Depth() int { return d.depth }

// References returns the union of both sides' references, sorted.
func (d *ObjectDiff) References() []string {
	var refs []string
	for _, obj := range []ir.Object{d.LowObj, d.HighObj} {
		if obj != nil {
			refs = append(refs, obj.References()...)
		}
	}
	slices.Sort(refs)
	return slices.Compact(refs)
}

func (d *ObjectDiff) String() string {
	return fmt.Sprintf("%s #%s [%s]", d.ObjectType, d.ObjectID, d.Status)
}

// ObjectDiffBatch is a dependency-connected group of diffs resolved as one
// unit. Diffs are ordered so referenced objects come first.
type ObjectDiffBatch struct {
	Diffs []*ObjectDiff
}

// AllSame reports whether every diff in the batch is SAME. Such a batch is
// skipped by resolution.
func (b *ObjectDiffBatch) AllSame() bool {
	for _, d := range b.Diffs {
		if d.Status != StatusSame {
			return false
		}
	}
	return true
}

func (b *ObjectDiffBatch) Len() int { return len(b.Diffs) }

// String renders the batch as an indented tree by dependency depth.
func (b *ObjectDiffBatch) String() string {
	var sb strings.Builder
	for _, d := range b.Diffs {
		sb.WriteString(strings.Repeat("  ", d.depth))
		sb.WriteString(d.String())
		if d.HighObj != nil && d.HighObj.IsPrivatelyScoped() {
			sb.WriteString(" (private)")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// NodeDiff is the full comparison of two sync states.
type NodeDiff struct {
	LowNodeName  string
	HighNodeName string
	Batches      []*ObjectDiffBatch
}

// ChangedBatches returns the batches that are not all SAME, in order.
func (n *NodeDiff) ChangedBatches() []*ObjectDiffBatch {
	out := make([]*ObjectDiffBatch, 0, len(n.Batches))
	for _, b := range n.Batches {
		if !b.AllSame() {
			out = append(out, b)
		}
	}
	return out
}

func (n *NodeDiff) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "diff %s (low) <-> %s (high): %d batches\n", n.LowNodeName, n.HighNodeName, len(n.Batches))
	for i, b := range n.Batches {
		fmt.Fprintf(&sb, "batch %d:\n", i+1)
		for _, line := range strings.SplitAfter(b.String(), "\n") {
			if line != "" {
				sb.WriteString("  " + line)
			}
		}
	}
	return sb.String()
}

// CompareStates is the exposed entry point of the diff engine.
func CompareStates(low, high *SyncState) (*NodeDiff, error) {
	return Compute(low, high)
}

// Compute diffs low against high and groups the result into batches.
//
// Output is fully determined by the inputs: object and batch order never
// depends on map iteration or on the order objects were listed in.
func Compute(low, high *SyncState) (*NodeDiff, error) {
	lowIdx, err := indexObjects(low)
	if err != nil {
		return nil, err
	}
	highIdx, err := indexObjects(high)
	if err != nil {
		return nil, err
	}
	lowTracked := toSet(low.Tracked)
	highTracked := toSet(high.Tracked)

	ids := make([]string, 0, len(lowIdx)+len(highIdx))
	for id := range lowIdx {
		ids = append(ids, id)
	}
	for id := range highIdx {
		if _, ok := lowIdx[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	diffs := make(map[string]*ObjectDiff, len(ids))
	for _, id := range ids {
		d, err := compareOne(id, lowIdx[id], highIdx[id], lowTracked, highTracked)
		if err != nil {
			return nil, err
		}
		diffs[id] = d
	}

	return &NodeDiff{
		LowNodeName:  low.NodeName,
		HighNodeName: high.NodeName,
		Batches:      batch(ids, diffs),
	}, nil
}

func indexObjects(s *SyncState) (map[string]ir.Object, error) {
	idx := make(map[string]ir.Object, len(s.Objects))
	for i, obj := range s.Objects {
		if obj == nil {
			return nil, fmt.Errorf("%s state: object %d is nil", s.Alias, i)
		}
		id := obj.ObjectID()
		if id == "" {
			return nil, fmt.Errorf("%s state: %s object %d has no id", s.Alias, obj.ObjectType(), i)
		}
		if _, dup := idx[id]; dup {
			return nil, fmt.Errorf("%s state: duplicate object id %q", s.Alias, id)
		}
		idx[id] = obj
	}
	return idx, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func compareOne(id string, lowObj, highObj ir.Object, lowTracked, highTracked map[string]bool) (*ObjectDiff, error) {
	d := &ObjectDiff{ObjectID: id, LowObj: lowObj, HighObj: highObj}

	var lowBytes, highBytes []byte
	var err error
	if lowObj != nil {
		d.ObjectType = lowObj.ObjectType()
		if lowBytes, err = ir.CanonicalObject(lowObj); err != nil {
			return nil, err
		}
		if d.LowDigest, err = ir.ObjectDigest(lowObj); err != nil {
			return nil, err
		}
	}
	if highObj != nil {
		d.ObjectType = highObj.ObjectType()
		if highBytes, err = ir.CanonicalObject(highObj); err != nil {
			return nil, err
		}
		if d.HighDigest, err = ir.ObjectDigest(highObj); err != nil {
			return nil, err
		}
	}

	switch {
	case lowObj != nil && highObj != nil:
		if bytes.Equal(lowBytes, highBytes) {
			d.Status = StatusSame
		} else {
			d.Status = StatusModified
		}
	case lowObj != nil:
		// Missing on high.
		if highTracked[id] {
			d.Status = StatusDeleted
		} else {
			d.Status = StatusNew
		}
	default:
		if lowTracked[id] {
			d.Status = StatusDeleted
		} else {
			d.Status = StatusNew
		}
	}
	return d, nil
}
