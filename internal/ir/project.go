package ir

import (
	"fmt"
	"slices"
	"time"
)

// Node is a participating server: a project member or a known network peer.
type Node struct {
	Name      string   `json:"name" yaml:"name"`
	ID        string   `json:"id" yaml:"id"`
	VerifyKey Identity `json:"verify_key" yaml:"verify_key"`
	// Route is where the node accepts sessions, e.g. ws://host:port/sessions.
	Route string `json:"route,omitempty" yaml:"route,omitempty"`
}

func (n Node) String() string {
	return fmt.Sprintf("%s-%s", n.Name, n.VerifyKey.Short())
}

// Project is a named collaboration with a single ordering authority.
//
// Events is append-only. len(Events)+1 is the only acceptable next seq_no.
// The id index is derived from Events and must be rebuilt with Reindex after
// Events is replaced wholesale (e.g. after loading from storage).
type Project struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	CreatedBy       Identity   `json:"created_by"`
	StateSyncLeader Node       `json:"state_sync_leader"`
	Members         []Node     `json:"members"`
	Users           []Identity `json:"users"`
	Events          []Event    `json:"events"`
	StartHash       string     `json:"start_hash"`

	eventIndex map[string]int
}

// NextSeq returns the only seq_no the log will accept next.
func (p *Project) NextSeq() int64 {
	return int64(len(p.Events)) + 1
}

// HasPermission reports whether who may read or write the project's log.
func (p *Project) HasPermission(who Identity) bool {
	if who == p.StateSyncLeader.VerifyKey {
		return true
	}
	for _, m := range p.Members {
		if m.VerifyKey == who {
			return true
		}
	}
	return slices.Contains(p.Users, who)
}

// Append adds ev to the log and the id index.
func (p *Project) Append(ev Event) {
	if p.eventIndex == nil {
		p.Reindex()
	}
	p.Events = append(p.Events, ev)
	p.eventIndex[ev.ID] = len(p.Events) - 1
}

// EventByID looks an event up through the id index.
func (p *Project) EventByID(id string) (Event, bool) {
	if p.eventIndex == nil {
		p.Reindex()
	}
	i, ok := p.eventIndex[id]
	if !ok {
		return Event{}, false
	}
	return p.Events[i], true
}

// Reindex rebuilds the id index from Events.
func (p *Project) Reindex() {
	p.eventIndex = make(map[string]int, len(p.Events))
	for i, ev := range p.Events {
		p.eventIndex[ev.ID] = i
	}
}

// IndexSize returns the number of indexed events. It always equals
// len(p.Events).
func (p *Project) IndexSize() int {
	if p.eventIndex == nil {
		p.Reindex()
	}
	return len(p.eventIndex)
}

// Clone returns a copy whose slices can be mutated independently.
func (p *Project) Clone() *Project {
	cp := *p
	cp.Members = slices.Clone(p.Members)
	cp.Users = slices.Clone(p.Users)
	cp.Events = slices.Clone(p.Events)
	cp.Reindex()
	return &cp
}

// EventKind discriminates the Event payload.
type EventKind string

const (
	KindRequest EventKind = "request"
	KindMessage EventKind = "message"
	KindPoll    EventKind = "poll"
)

// Event is one immutable entry of a project log.
// Exactly one payload pointer matching Kind is set.
type Event struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	SeqNo     int64     `json:"seq_no"`
	Creator   Identity  `json:"creator"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`

	Request *RequestPayload `json:"request,omitempty"`
	Message *MessagePayload `json:"message,omitempty"`
	Poll    *PollPayload    `json:"poll,omitempty"`
}

// RequestPayload links an external approval request to the project.
type RequestPayload struct {
	RequestID       string   `json:"request_id"`
	ServerUID       string   `json:"server_uid"`
	ServerVerifyKey Identity `json:"server_verify_key"`
	Summary         string   `json:"summary,omitempty"`
}

// MessagePayload is a free-form message, optionally replying to ParentID.
type MessagePayload struct {
	Text     string `json:"text"`
	ParentID string `json:"parent_id,omitempty"`
}

// PollPayload asks members to pick one of Choices.
type PollPayload struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
}

// Validate checks that the discriminant and payload agree.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	set := 0
	for _, present := range []bool{e.Request != nil, e.Message != nil, e.Poll != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("event %s: expected exactly one payload, got %d", e.ID, set)
	}
	switch e.Kind {
	case KindRequest:
		if e.Request == nil {
			return fmt.Errorf("event %s: kind %q without request payload", e.ID, e.Kind)
		}
	case KindMessage:
		if e.Message == nil {
			return fmt.Errorf("event %s: kind %q without message payload", e.ID, e.Kind)
		}
	case KindPoll:
		if e.Poll == nil {
			return fmt.Errorf("event %s: kind %q without poll payload", e.ID, e.Kind)
		}
		if len(e.Poll.Choices) < 2 {
			return fmt.Errorf("event %s: poll needs at least two choices", e.ID)
		}
	default:
		return fmt.Errorf("event %s: unknown kind %q", e.ID, e.Kind)
	}
	return nil
}

// Notification is a message delivered to a node's inbox.
type Notification struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	From      Identity  `json:"from"`
	To        Identity  `json:"to"`
	ProjectID string    `json:"project_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
