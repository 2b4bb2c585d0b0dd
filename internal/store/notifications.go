package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/syncbridge/internal/ir"
)

// WriteNotification stores n in the inbox. Duplicate ids are ignored.
func (s *Store) WriteNotification(ctx context.Context, n ir.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, subject, from_key, to_key, project_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, n.ID, n.Subject, n.From.String(), n.To.String(), n.ProjectID, n.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// ReadNotifications returns the inbox of to, oldest first. ULID ids sort by
// creation time.
func (s *Store) ReadNotifications(ctx context.Context, to ir.Identity) ([]ir.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, from_key, to_key, project_id, created_at
		FROM notifications
		WHERE to_key = ?
		ORDER BY id ASC
	`, to.String())
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []ir.Notification{}
	for rows.Next() {
		var (
			n                 ir.Notification
			from, dest, stamp string
		)
		if err := rows.Scan(&n.ID, &n.Subject, &from, &dest, &n.ProjectID, &stamp); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if n.From, err = ir.ParseIdentity(from); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if n.To, err = ir.ParseIdentity(dest); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if n.CreatedAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
