package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/project"
	"github.com/roach88/syncbridge/internal/testutil"
)

type mapDirectory map[ir.Identity]ir.Node

func (m mapDirectory) GetPeerByVerifyKey(_ context.Context, key ir.Identity) (ir.Node, error) {
	n, ok := m[key]
	if !ok {
		return ir.Node{}, fmt.Errorf("peer %s not found", key.Short())
	}
	return n, nil
}

// recordingHandler records delivered events and answers with err. Sync
// serves the recorded events.
type recordingHandler struct {
	mu     sync.Mutex
	events []ir.Event
	creds  []project.Credentials
	err    error
}

func (h *recordingHandler) Sync(_ context.Context, cred project.Credentials, projectID string, seqNo int) ([]ir.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	h.creds = append(h.creds, cred)
	out := []ir.Event{}
	for _, ev := range h.events {
		if ev.ProjectID == projectID && ev.SeqNo > int64(seqNo) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (h *recordingHandler) AddEvent(_ context.Context, cred project.Credentials, ev ir.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, ev)
	h.creds = append(h.creds, cred)
	return nil
}

func testEvent(seq int64) ir.Event {
	return ir.Event{
		ID:        fmt.Sprintf("ev-%d", seq),
		ProjectID: "p1",
		SeqNo:     seq,
		Creator:   testutil.Identity("ds"),
		Timestamp: testutil.Epoch,
		Kind:      ir.KindMessage,
		Message:   &ir.MessagePayload{Text: "hi"},
	}
}
