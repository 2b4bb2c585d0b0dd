package store

import (
	"context"
	"fmt"

	"github.com/roach88/syncbridge/internal/ir"
)

// ApplyDecisions records one side's resolved sync decisions in a single
// transaction: every read grant goes into action_permissions and every
// decision gets an audit row in sync_decisions.
//
// Grants are merged idempotently (ON CONFLICT DO NOTHING); applying the same
// session twice is a no-op.
func (s *Store) ApplyDecisions(ctx context.Context, session, alias string, records []ir.DecisionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply decisions: begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, rec := range records {
		payload, err := marshalPayload(rec.Payload)
		if err != nil {
			return fmt.Errorf("apply decisions: %w", err)
		}
		mockify := 0
		if rec.Mockify {
			mockify = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sync_decisions
			(session, alias, position, object_id, object_type, side, mockify, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session, alias, position) DO NOTHING
		`, session, alias, i, rec.ObjectID, rec.ObjectType, rec.Side, mockify, payload)
		if err != nil {
			return fmt.Errorf("apply decisions: record %s: %w", rec.ObjectID, err)
		}

		for _, g := range rec.Grants {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO action_permissions (object_id, permission, credentials)
				VALUES (?, ?, ?)
				ON CONFLICT DO NOTHING
			`, g.ObjectID, string(g.Permission), g.Credentials.String())
			if err != nil {
				return fmt.Errorf("apply decisions: grant on %s: %w", g.ObjectID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply decisions: commit: %w", err)
	}
	return nil
}

// ReadGrants returns all permissions granted on objectID, ordered by
// permission then credentials.
func (s *Store) ReadGrants(ctx context.Context, objectID string) ([]ir.ActionObjectPermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id, permission, credentials FROM action_permissions
		WHERE object_id = ?
		ORDER BY permission ASC, credentials ASC
	`, objectID)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	grants := []ir.ActionObjectPermission{}
	for rows.Next() {
		var g ir.ActionObjectPermission
		var perm, cred string
		if err := rows.Scan(&g.ObjectID, &perm, &cred); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.Permission = ir.Permission(perm)
		if g.Credentials, err = ir.ParseIdentity(cred); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}

// AppliedDecision is a stored audit row.
type AppliedDecision struct {
	Position   int
	ObjectID   string
	ObjectType string
	Side       string
	Mockify    bool
	Payload    string
}

// ReadAppliedDecisions returns the audit rows of one session and side in
// application order.
func (s *Store) ReadAppliedDecisions(ctx context.Context, session, alias string) ([]AppliedDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, object_id, object_type, side, mockify, payload
		FROM sync_decisions
		WHERE session = ? AND alias = ?
		ORDER BY position ASC
	`, session, alias)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	out := []AppliedDecision{}
	for rows.Next() {
		var d AppliedDecision
		var mockify int
		if err := rows.Scan(&d.Position, &d.ObjectID, &d.ObjectType, &d.Side, &mockify, &d.Payload); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Mockify = mockify != 0
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}
