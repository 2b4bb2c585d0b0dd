package store

import (
	"context"
	"fmt"

	"github.com/roach88/syncbridge/internal/ir"
)

// LogState describes the integrity of a project's persisted event log.
type LogState struct {
	ProjectID  string
	EventCount int   // value of projects.event_count
	RowCount   int   // rows actually stored in project_events
	LastSeq    int64 // highest stored seq_no
	// Gaps lists seq_nos in 1..LastSeq with no stored event.
	Gaps []int64
	// Mismatched lists stored rows whose payload disagrees with the row
	// (seq_no, id or project) it was filed under.
	Mismatched []int64
	Contiguous bool
}

// VerifyLog checks that a project's log is exactly events 1..N with no holes,
// that every payload agrees with its row, and that the recorded event count
// matches. It reads rows directly rather than through GetProject so that a
// damaged log is reported instead of silently reindexed.
func (s *Store) VerifyLog(ctx context.Context, projectID string) (LogState, error) {
	state := LogState{ProjectID: projectID}

	err := s.db.QueryRowContext(ctx, `SELECT event_count FROM projects WHERE id = ?`, projectID).
		Scan(&state.EventCount)
	if err != nil {
		if isNoRows(err) {
			return state, fmt.Errorf("verify log %s: %w", projectID, ErrNotFound)
		}
		return state, fmt.Errorf("verify log: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq_no, id, payload FROM project_events
		WHERE project_id = ?
		ORDER BY seq_no ASC
	`, projectID)
	if err != nil {
		return state, fmt.Errorf("verify log: %w", err)
	}
	defer rows.Close()

	expect := int64(1)
	for rows.Next() {
		var (
			seq     int64
			id      string
			payload string
		)
		if err := rows.Scan(&seq, &id, &payload); err != nil {
			return state, fmt.Errorf("verify log: scan: %w", err)
		}
		for ; expect < seq; expect++ {
			state.Gaps = append(state.Gaps, expect)
		}
		expect = seq + 1
		state.RowCount++
		state.LastSeq = seq

		ev, err := unmarshalEvent(payload)
		if err != nil || !payloadMatchesRow(ev, projectID, seq, id) {
			state.Mismatched = append(state.Mismatched, seq)
		}
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("verify log: iterate: %w", err)
	}

	state.Contiguous = len(state.Gaps) == 0 &&
		len(state.Mismatched) == 0 &&
		state.RowCount == state.EventCount &&
		state.LastSeq == int64(state.RowCount)
	return state, nil
}

func payloadMatchesRow(ev ir.Event, projectID string, seq int64, id string) bool {
	if ev.SeqNo != seq || ev.ID != id {
		return false
	}
	return ev.ProjectID == "" || ev.ProjectID == projectID
}
