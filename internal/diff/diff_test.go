package diff

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/testutil"
)

func chain(prefix string) (*ir.UserCode, *ir.Job, *ir.Result) {
	uc := &ir.UserCode{
		ID:            prefix + "-code",
		UserVerifyKey: testutil.Identity("ds"),
		ServiceFunc:   "train",
		Code:          "def train(): ...",
		Status:        "approved",
	}
	job := &ir.Job{ID: prefix + "-job", UserCodeID: uc.ID, Status: "completed", ResultID: prefix + "-result"}
	res := &ir.Result{
		ID:      prefix + "-result",
		JobID:   job.ID,
		Public:  ir.Map{"rows": ir.Int(0)},
		Private: ir.Map{"rows": ir.Int(42)},
	}
	return uc, job, res
}

func TestCompute_Statuses(t *testing.T) {
	uc, job, res := chain("a")
	modified := *job
	modified.Status = "running"
	lonely := &ir.Request{ID: "z-request", UserCodeID: "elsewhere", Status: "pending"}
	gone := &ir.Request{ID: "y-request", Status: "pending"}

	low := &SyncState{Alias: "low", NodeName: "low-node", Objects: []ir.Object{uc, &modified, gone}, Tracked: []string{"y-request"}}
	high := &SyncState{Alias: "high", NodeName: "high-node", Objects: []ir.Object{uc, job, res, lonely}, Tracked: []string{"y-request"}}

	nd, err := Compute(low, high)
	require.NoError(t, err)

	statuses := map[string]Status{}
	for _, b := range nd.Batches {
		for _, d := range b.Diffs {
			statuses[d.ObjectID] = d.Status
		}
	}
	assert.Equal(t, map[string]Status{
		"a-code":    StatusSame,
		"a-job":     StatusModified,
		"a-result":  StatusNew,
		"y-request": StatusDeleted,
		"z-request": StatusNew,
	}, statuses)
	assert.Equal(t, "low-node", nd.LowNodeName)
	assert.Equal(t, "high-node", nd.HighNodeName)
}

func TestCompute_DigestsMatchForSameObjects(t *testing.T) {
	uc, _, _ := chain("a")
	copyUC := *uc

	nd, err := Compute(
		&SyncState{Alias: "low", Objects: []ir.Object{uc}},
		&SyncState{Alias: "high", Objects: []ir.Object{&copyUC}},
	)
	require.NoError(t, err)
	require.Len(t, nd.Batches, 1)

	d := nd.Batches[0].Diffs[0]
	assert.Equal(t, StatusSame, d.Status)
	assert.NotEmpty(t, d.LowDigest)
	assert.Equal(t, d.LowDigest, d.HighDigest)
}

func TestCompute_BatchesByDependency(t *testing.T) {
	ucA, jobA, resA := chain("a")
	ucB, jobB, _ := chain("b")

	high := &SyncState{Alias: "high", Objects: []ir.Object{resA, jobB, jobA, ucB, ucA}}
	low := &SyncState{Alias: "low"}

	nd, err := Compute(low, high)
	require.NoError(t, err)
	require.Len(t, nd.Batches, 2)

	ids := func(b *ObjectDiffBatch) []string {
		out := []string{}
		for _, d := range b.Diffs {
			out = append(out, d.ObjectID)
		}
		return out
	}
	assert.Equal(t, []string{"a-code", "a-job", "a-result"}, ids(nd.Batches[0]))
	assert.Equal(t, []string{"b-code", "b-job"}, ids(nd.Batches[1]))

	depths := []int{}
	for _, d := range nd.Batches[0].Diffs {
		depths = append(depths, d.Depth())
	}
	assert.Equal(t, []int{0, 1, 2}, depths)
}

func TestCompute_DependencyOrderBeatsIDOrder(t *testing.T) {
	// The job sorts before its code by id but must still come after it.
	uc := &ir.UserCode{ID: "zz-code", UserVerifyKey: testutil.Identity("ds")}
	job := &ir.Job{ID: "aa-job", UserCodeID: uc.ID}

	nd, err := Compute(&SyncState{Alias: "low"}, &SyncState{Alias: "high", Objects: []ir.Object{job, uc}})
	require.NoError(t, err)
	require.Len(t, nd.Batches, 1)
	assert.Equal(t, "zz-code", nd.Batches[0].Diffs[0].ObjectID)
	assert.Equal(t, "aa-job", nd.Batches[0].Diffs[1].ObjectID)
}

func TestCompute_Deterministic(t *testing.T) {
	var objects []ir.Object
	for _, p := range []string{"a", "b", "c", "d"} {
		uc, job, res := chain(p)
		objects = append(objects, uc, job, res)
	}

	first, err := Compute(&SyncState{Alias: "low"}, &SyncState{Alias: "high", Objects: objects})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]ir.Object(nil), objects...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		again, err := Compute(&SyncState{Alias: "low"}, &SyncState{Alias: "high", Objects: shuffled})
		require.NoError(t, err)
		assert.Equal(t, first.String(), again.String())
	}
}

func TestCompute_DuplicateID(t *testing.T) {
	uc, _, _ := chain("a")
	_, err := Compute(&SyncState{Alias: "low", Objects: []ir.Object{uc, uc}}, &SyncState{Alias: "high"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate object id "a-code"`)
}

func TestCompute_NilObject(t *testing.T) {
	_, err := Compute(&SyncState{Alias: "low"}, &SyncState{Alias: "high", Objects: []ir.Object{nil}})
	require.Error(t, err)
}

func TestCompute_ReferenceCycle(t *testing.T) {
	a := &ir.Request{ID: "r1", UserCodeID: "r2"}
	b := &ir.Request{ID: "r2", UserCodeID: "r1"}

	nd, err := Compute(&SyncState{Alias: "low"}, &SyncState{Alias: "high", Objects: []ir.Object{a, b}})
	require.NoError(t, err)
	require.Len(t, nd.Batches, 1)
	assert.Equal(t, 2, nd.Batches[0].Len())
}

func TestBatch_AllSameAndChanged(t *testing.T) {
	ucA, jobA, _ := chain("a")
	ucB, jobB, _ := chain("b")
	changed := *jobB
	changed.Status = "failed"

	low := &SyncState{Alias: "low", Objects: []ir.Object{ucA, jobA, ucB, &changed}}
	high := &SyncState{Alias: "high", Objects: []ir.Object{ucA, jobA, ucB, jobB}}

	nd, err := Compute(low, high)
	require.NoError(t, err)
	require.Len(t, nd.Batches, 2)
	assert.True(t, nd.Batches[0].AllSame())
	assert.False(t, nd.Batches[1].AllSame())

	changedBatches := nd.ChangedBatches()
	require.Len(t, changedBatches, 1)
	assert.Same(t, nd.Batches[1], changedBatches[0])
}

func TestNodeDiff_String(t *testing.T) {
	uc, job, res := chain("a")
	nd, err := CompareStates(
		&SyncState{Alias: "low", NodeName: "internal", Objects: []ir.Object{uc}},
		&SyncState{Alias: "high", NodeName: "public", Objects: []ir.Object{uc, job, res}},
	)
	require.NoError(t, err)

	want := "diff internal (low) <-> public (high): 1 batches\n" +
		"batch 1:\n" +
		"  UserCode #a-code [SAME]\n" +
		"    Job #a-job [NEW]\n" +
		"      Result #a-result [NEW] (private)\n"
	assert.Equal(t, want, nd.String())
}
