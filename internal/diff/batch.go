package diff

import (
	"cmp"
	"slices"
)

// unionFind groups object ids connected by references.
type unionFind struct {
	parent map[string]string
}

func newUnionFind(ids []string) *unionFind {
	uf := &unionFind{parent: make(map[string]string, len(ids))}
	for _, id := range ids {
		uf.parent[id] = id
	}
	return uf
}

func (u *unionFind) find(id string) string {
	for u.parent[id] != id {
		u.parent[id] = u.parent[u.parent[id]]
		id = u.parent[id]
	}
	return id
}

// union keeps the smaller id as root so roots are deterministic.
func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// batch groups sorted ids into dependency-connected batches.
// References to ids that are not part of the diff are ignored.
func batch(ids []string, diffs map[string]*ObjectDiff) []*ObjectDiffBatch {
	uf := newUnionFind(ids)
	for _, id := range ids {
		for _, ref := range diffs[id].References() {
			if _, ok := diffs[ref]; ok {
				uf.union(id, ref)
			}
		}
	}

	groups := make(map[string][]*ObjectDiff)
	var roots []string
	for _, id := range ids {
		root := uf.find(id)
		if _, seen := groups[root]; !seen {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], diffs[id])
	}

	depths := computeDepths(ids, diffs)
	batches := make([]*ObjectDiffBatch, 0, len(roots))
	for _, root := range roots {
		members := groups[root]
		for _, d := range members {
			d.depth = depths[d.ObjectID]
		}
		slices.SortFunc(members, func(a, b *ObjectDiff) int {
			if c := cmp.Compare(a.depth, b.depth); c != 0 {
				return c
			}
			return cmp.Compare(a.ObjectID, b.ObjectID)
		})
		batches = append(batches, &ObjectDiffBatch{Diffs: members})
	}

	slices.SortFunc(batches, func(a, b *ObjectDiffBatch) int {
		return cmp.Compare(a.Diffs[0].ObjectID, b.Diffs[0].ObjectID)
	})
	return batches
}

// computeDepths returns, per id, the length of the longest reference chain
// below it. A reference cycle is cut where it is first revisited.
func computeDepths(ids []string, diffs map[string]*ObjectDiff) map[string]int {
	depth := make(map[string]int, len(ids))
	onStack := make(map[string]bool)

	var visit func(id string) int
	visit = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		if onStack[id] {
			return -1
		}
		onStack[id] = true
		best := 0
		for _, ref := range diffs[id].References() {
			if _, ok := diffs[ref]; !ok || ref == id {
				continue
			}
			if d := visit(ref); d >= 0 && d+1 > best {
				best = d + 1
			}
		}
		onStack[id] = false
		depth[id] = best
		return best
	}

	for _, id := range ids {
		visit(id)
	}
	return depth
}
