package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/syncbridge/internal/ir"
)

// CreateProject inserts a new project together with any events it already
// carries. Returns ErrAlreadyExists if the id or name is taken.
func (s *Store) CreateProject(ctx context.Context, p *ir.Project) error {
	leader, err := marshalNode(p.StateSyncLeader)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	members, err := marshalNodes(p.Members)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	users, err := marshalIdentities(p.Users)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create project: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects
		(id, name, description, created_by, leader, members, users, start_hash, event_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.Name,
		p.Description,
		p.CreatedBy.String(),
		leader,
		members,
		users,
		p.StartHash,
		len(p.Events),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("create project %s: %w", p.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("create project: %w", err)
	}

	if err := insertEvents(ctx, tx, p.ID, p.Events); err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create project: commit: %w", err)
	}
	return nil
}

// UpdateProject persists events appended since the caller loaded p, along
// with its mutable metadata.
//
// expectedCount is the number of events the caller's copy had when it was
// loaded. If the stored count differs another writer got there first and
// ErrStaleProject is returned without writing anything.
func (s *Store) UpdateProject(ctx context.Context, p *ir.Project, expectedCount int) error {
	if expectedCount < 0 || expectedCount > len(p.Events) {
		return fmt.Errorf("update project %s: expected count %d out of range", p.ID, expectedCount)
	}

	members, err := marshalNodes(p.Members)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	users, err := marshalIdentities(p.Users)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update project: begin tx: %w", err)
	}
	defer tx.Rollback()

	var stored int
	err = tx.QueryRowContext(ctx, `SELECT event_count FROM projects WHERE id = ?`, p.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update project %s: %w", p.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update project: read count: %w", err)
	}
	if stored != expectedCount {
		return fmt.Errorf("update project %s: stored %d events, caller loaded %d: %w",
			p.ID, stored, expectedCount, ErrStaleProject)
	}

	if err := insertEvents(ctx, tx, p.ID, p.Events[expectedCount:]); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("update project %s: %w", p.ID, ErrStaleProject)
		}
		return fmt.Errorf("update project: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE projects
		SET description = ?, members = ?, users = ?, event_count = ?
		WHERE id = ? AND event_count = ?
	`, p.Description, members, users, len(p.Events), p.ID, expectedCount)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update project: commit: %w", err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, projectID string, events []ir.Event) error {
	for _, ev := range events {
		payload, err := marshalEvent(ev)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO project_events (project_id, seq_no, id, kind, payload)
			VALUES (?, ?, ?, ?, ?)
		`, projectID, ev.SeqNo, ev.ID, string(ev.Kind), payload)
		if err != nil {
			return fmt.Errorf("insert event %s (seq %d): %w", ev.ID, ev.SeqNo, err)
		}
	}
	return nil
}

// GetProject loads a project and its full event log by id.
// Returns ErrNotFound if the project does not exist.
func (s *Store) GetProject(ctx context.Context, id string) (*ir.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_by, leader, members, users, start_hash
		FROM projects
		WHERE id = ?
	`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	if err := s.loadEvents(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProjectByName loads a project by its unique name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*ir.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_by, leader, members, users, start_hash
		FROM projects
		WHERE name = ?
	`, name)
	p, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("get project %q: %w", name, err)
	}
	if err := s.loadEvents(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjects returns all projects ordered by name, then id.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListProjects(ctx context.Context) ([]*ir.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_by, leader, members, users, start_hash
		FROM projects
		ORDER BY name ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}

	projects := []*ir.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	rows.Close()

	// Events are loaded after the cursor is closed; the pool has one connection.
	for _, p := range projects {
		if err := s.loadEvents(ctx, p); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// ReadEvents returns a project's events with seq_no > after, in order.
func (s *Store) ReadEvents(ctx context.Context, projectID string, after int64) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM project_events
		WHERE project_id = ? AND seq_no > ?
		ORDER BY seq_no ASC
	`, projectID, after)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := unmarshalEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *Store) loadEvents(ctx context.Context, p *ir.Project) error {
	events, err := s.ReadEvents(ctx, p.ID, 0)
	if err != nil {
		return fmt.Errorf("load events for %s: %w", p.ID, err)
	}
	p.Events = events
	p.Reindex()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*ir.Project, error) {
	var (
		p                      ir.Project
		createdBy              string
		leader, members, users string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &createdBy, &leader, &members, &users, &p.StartHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}

	if createdBy != "" {
		if p.CreatedBy, err = ir.ParseIdentity(createdBy); err != nil {
			return nil, fmt.Errorf("scan project: created_by: %w", err)
		}
	}
	if p.StateSyncLeader, err = unmarshalNode(leader); err != nil {
		return nil, err
	}
	if p.Members, err = unmarshalNodes(members); err != nil {
		return nil, err
	}
	if p.Users, err = unmarshalIdentities(users); err != nil {
		return nil, err
	}
	return &p, nil
}
