// Package module wires the aggregate worker service and exposes its ports
package module

import (
	"statskeep/internal/modkit"
	"statskeep/internal/modkit/httpkit"
	arepo "statskeep/internal/services/aggregate/repo"
	asvc "statskeep/internal/services/aggregate/service"
	archdom "statskeep/internal/services/archive/domain"
)

// Module defines the aggregate worker module
type Module struct {
	deps  modkit.Deps
	svc   *asvc.Svc
	ports Ports
}

// Ports exposes the aggregator registry the archive engine runs, plus
// the service itself for schema and ingestion wiring
type Ports struct {
	Aggregators archdom.AggregatorRegistry
	Service     asvc.Service
}

// New constructs the aggregate worker module
func New(deps modkit.Deps) *Module {
	svc := asvc.New(deps.PG, arepo.NewPG(), deps.CH)

	m := &Module{deps: deps, svc: svc}
	m.ports = Ports{
		Aggregators: asvc.NewRegistry(svc),
		Service:     svc,
	}
	return m
}

// Service exposes the concrete service for worker wiring
func (m *Module) Service() *asvc.Svc { return m.svc }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return "aggregate" }

// Prefix returns the module config prefix (none for worker-only service)
func (m *Module) Prefix() string { return "" }

// MountRoutes returns no HTTP routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
