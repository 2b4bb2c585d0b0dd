package resolve

import (
	"slices"
	"strings"

	"github.com/roach88/syncbridge/internal/diff"
)

// MinPrefix is the shortest id prefix accepted when picking an object.
const MinPrefix = 3

// Outcome is the result of one SharingSession.Select call.
type Outcome int

const (
	// Shared: exactly one remaining candidate matched and is now shared.
	Shared Outcome = iota
	// Done: the user declined to share anything more.
	Done
	// Ambiguous: the prefix matched several candidates. Ask again.
	Ambiguous
	// Invalid: too short or matched nothing. Ask again.
	Invalid
)

func (o Outcome) String() string {
	switch o {
	case Shared:
		return "shared"
	case Done:
		return "done"
	case Ambiguous:
		return "ambiguous"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

// SharingSession tracks which private candidates remain to be offered.
// It performs no I/O; providers feed it one answer at a time.
type SharingSession struct {
	remaining []*diff.ObjectDiff
	shared    []*diff.ObjectDiff
	done      bool
}

func NewSharingSession(candidates []*diff.ObjectDiff) *SharingSession {
	return &SharingSession{remaining: slices.Clone(candidates)}
}

// Remaining lists candidates not yet shared, in offer order.
func (s *SharingSession) Remaining() []*diff.ObjectDiff {
	return slices.Clone(s.remaining)
}

// Shared lists the candidates selected so far, in selection order.
func (s *SharingSession) Shared() []*diff.ObjectDiff {
	return slices.Clone(s.shared)
}

// Finished reports whether no more answers are needed.
func (s *SharingSession) Finished() bool {
	return s.done || len(s.remaining) == 0
}

// Stop ends the session as if the user answered "no".
func (s *SharingSession) Stop() { s.done = true }

// Select applies one answer. On Shared the matched diff is returned.
func (s *SharingSession) Select(input string) (Outcome, *diff.ObjectDiff) {
	if s.Finished() {
		return Done, nil
	}
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "no") {
		s.done = true
		return Done, nil
	}
	if len(input) < MinPrefix {
		return Invalid, nil
	}

	var matches []int
	for i, d := range s.remaining {
		if strings.HasPrefix(d.ObjectID, input) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return Invalid, nil
	case 1:
		d := s.remaining[matches[0]]
		s.remaining = slices.Delete(s.remaining, matches[0], matches[0]+1)
		s.shared = append(s.shared, d)
		return Shared, d
	default:
		return Ambiguous, nil
	}
}
