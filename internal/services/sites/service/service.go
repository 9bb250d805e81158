// Package service contains site registry workflows
package service

import (
	"context"

	"statskeep/internal/modkit/repokit"
	"statskeep/internal/services/sites/domain"
	"statskeep/internal/services/sites/repo"
)

// Service defines the sites service contract
type Service interface {
	domain.ServicePort
}

// Svc implements the sites service
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
}

// New constructs a sites service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo]) *Svc {
	if db == nil {
		panic("sites.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("sites.Service requires a non nil Repo binder")
	}
	return &Svc{Repo: binder.Bind(db), binder: binder, db: db}
}

// EnsureSchema creates the site table when missing
func (s *Svc) EnsureSchema(ctx context.Context) error {
	return s.Repo.EnsureSchema(ctx)
}

// Create registers a new site
func (s *Svc) Create(ctx context.Context, in domain.CreateInput) (domain.Site, error) {
	return s.Repo.Insert(ctx, in)
}

// Get returns one site by id
func (s *Svc) Get(ctx context.Context, in domain.GetInput) (domain.Site, error) {
	return s.Repo.Get(ctx, in.ID)
}

// List pages through the registry
func (s *Svc) List(ctx context.Context, in domain.ListInput) ([]domain.Site, error) {
	limit := in.Limit
	if limit == 0 {
		limit = 100
	}
	return s.Repo.List(ctx, limit, in.Offset)
}
