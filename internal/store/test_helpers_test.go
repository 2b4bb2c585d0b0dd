package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/testutil"
)

// createTestStore creates a new on-disk store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestProject creates a project led by L with members L and F.
func createTestProject(id, name string) *ir.Project {
	leader := testutil.Node("L")
	return &ir.Project{
		ID:              id,
		Name:            name,
		Description:     "test project",
		CreatedBy:       testutil.Identity("ds"),
		StateSyncLeader: leader,
		Members:         []ir.Node{leader, testutil.Node("F")},
		Users:           []ir.Identity{testutil.Identity("ds")},
		StartHash:       "start-" + id,
	}
}

// createTestEvent creates a message event with the given seq_no.
func createTestEvent(projectID string, seq int64) ir.Event {
	return ir.Event{
		ID:        fmt.Sprintf("ev-%d", seq),
		ProjectID: projectID,
		SeqNo:     seq,
		Creator:   testutil.Identity("L"),
		Timestamp: testutil.Epoch.Add(time.Duration(seq) * time.Second),
		Kind:      ir.KindMessage,
		Message:   &ir.MessagePayload{Text: fmt.Sprintf("message %d", seq)},
	}
}
