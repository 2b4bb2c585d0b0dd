package project

import (
	"context"
	"time"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/store"
)

// StoreStash adapts a SQLite store to the Stash contract.
type StoreStash struct {
	Store *store.Store
}

func (s StoreStash) GetByUID(ctx context.Context, id string) (*ir.Project, error) {
	return s.Store.GetProject(ctx, id)
}

func (s StoreStash) GetByName(ctx context.Context, name string) (*ir.Project, error) {
	return s.Store.GetProjectByName(ctx, name)
}

func (s StoreStash) GetAll(ctx context.Context) ([]*ir.Project, error) {
	return s.Store.ListProjects(ctx)
}

func (s StoreStash) Set(ctx context.Context, p *ir.Project) error {
	return s.Store.CreateProject(ctx, p)
}

func (s StoreStash) Update(ctx context.Context, p *ir.Project, expectedLen int) error {
	return s.Store.UpdateProject(ctx, p, expectedLen)
}

// StoreNotifier delivers notifications into the local inbox table.
type StoreNotifier struct {
	Store *store.Store
}

func (n StoreNotifier) Send(ctx context.Context, note ir.Notification) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	return n.Store.WriteNotification(ctx, note)
}
