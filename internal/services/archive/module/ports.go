package module

import (
	"context"

	"statskeep/internal/services/archive/domain"
	asvc "statskeep/internal/services/archive/service"
)

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// adaptArchivePort exposes service methods as module ports for
// cross-module usage
type adaptArchivePort struct{ svc asvc.Service }

func (a adaptArchivePort) GetNumeric(ctx context.Context, in domain.QueryInput) (*domain.Result, error) {
	return a.svc.GetNumeric(ctx, in)
}

func (a adaptArchivePort) GetBlob(ctx context.Context, in domain.QueryInput) (*domain.Result, error) {
	return a.svc.GetBlob(ctx, in)
}

func (a adaptArchivePort) GetDataTable(ctx context.Context, in domain.QueryInput) (*domain.Result, error) {
	return a.svc.GetDataTable(ctx, in)
}

func (a adaptArchivePort) GetDataTableExpanded(ctx context.Context, in domain.QueryInput) (*domain.Result, error) {
	return a.svc.GetDataTableExpanded(ctx, in)
}

func (a adaptArchivePort) Invalidate(ctx context.Context, in domain.InvalidateInput) (int64, error) {
	return a.svc.Invalidate(ctx, in)
}

func (a adaptArchivePort) PurgeErrored(ctx context.Context, in domain.PurgeInput) (int64, error) {
	return a.svc.PurgeErrored(ctx, in)
}
