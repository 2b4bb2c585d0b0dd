package resolve

import (
	"context"
	"fmt"

	"github.com/roach88/syncbridge/internal/diff"
	"github.com/roach88/syncbridge/internal/ir"
)

// Scripted is a DecisionProvider that replays fixed answers. Sides are
// consumed one per DecideBatch call. Answers are fed to every sharing
// session in order, exactly as a human would type them.
type Scripted struct {
	Sides   []Side
	Answers []string

	// Log records every answer consumed and its outcome.
	Log []string
}

func (s *Scripted) DecideBatch(_ context.Context, batch *diff.ObjectDiffBatch) (Side, error) {
	if len(s.Sides) == 0 {
		return "", fmt.Errorf("scripted: no side left for batch starting at %s", batch.Diffs[0].ObjectID)
	}
	side := s.Sides[0]
	s.Sides = s.Sides[1:]
	return side, nil
}

// DecidePrivateSharing behaves like end of input once Answers run out.
func (s *Scripted) DecidePrivateSharing(_ context.Context, _ ir.Identity, candidates []*diff.ObjectDiff) ([]*diff.ObjectDiff, error) {
	session := NewSharingSession(candidates)
	for !session.Finished() {
		if len(s.Answers) == 0 {
			session.Stop()
			break
		}
		answer := s.Answers[0]
		s.Answers = s.Answers[1:]
		outcome, _ := session.Select(answer)
		s.Log = append(s.Log, fmt.Sprintf("%s -> %s", answer, outcome))
	}
	return session.Shared(), nil
}
