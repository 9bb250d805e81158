package module

import (
	"context"

	"statskeep/internal/core/period"
	archdom "statskeep/internal/services/archive/domain"
	"statskeep/internal/services/sites/domain"
	ssvc "statskeep/internal/services/sites/service"
)

// Ports exposes what other modules take from the registry: the CRUD
// surface and the creation-date reader the archive skip rules consult
type Ports struct {
	Sites  domain.ServicePort
	Reader archdom.SiteReader
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// adaptSitesPort exposes service methods as module ports
type adaptSitesPort struct{ svc ssvc.Service }

func (a adaptSitesPort) Create(ctx context.Context, in domain.CreateInput) (domain.Site, error) {
	return a.svc.Create(ctx, in)
}

func (a adaptSitesPort) Get(ctx context.Context, in domain.GetInput) (domain.Site, error) {
	return a.svc.Get(ctx, in)
}

func (a adaptSitesPort) List(ctx context.Context, in domain.ListInput) ([]domain.Site, error) {
	return a.svc.List(ctx, in)
}

// creationReader maps registry rows to the archive engine's view of a
// site: its creation day and timezone
type creationReader struct{ svc ssvc.Service }

func (c creationReader) CreationDate(ctx context.Context, siteID int64) (archdom.SiteCreation, error) {
	s, err := c.svc.Get(ctx, domain.GetInput{ID: siteID})
	if err != nil {
		return archdom.SiteCreation{}, err
	}
	day, err := period.New(period.KindDay, s.CreatedAt.UTC())
	if err != nil {
		return archdom.SiteCreation{}, err
	}
	return archdom.SiteCreation{SiteID: s.ID, CreatedAt: day, Timezone: s.Timezone}, nil
}
