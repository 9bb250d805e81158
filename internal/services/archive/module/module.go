// Package module wires the archive engine into the API using modkit
package module

import (
	"net/http"

	modkit "statskeep/internal/modkit"
	"statskeep/internal/modkit/httpkit"
	str "statskeep/internal/platform/strings"

	"statskeep/internal/services/archive/domain"
	ahttp "statskeep/internal/services/archive/http"
	arepo "statskeep/internal/services/archive/repo"
	asvc "statskeep/internal/services/archive/service"
)

// Module implements the archive module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc asvc.Service
}

// Ports declares the injected cross-module ports the engine needs:
// the site registry for skip rules and the aggregator set to run when a
// cell has no usable archive
type Ports struct {
	Sites       domain.SiteReader
	Aggregators domain.AggregatorRegistry
}

// New constructs the archive module
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("archive"),
		modkit.WithPrefix("/archive"),
	}, opts...)...)

	var injected Ports
	if p, ok := b.Ports.(Ports); ok {
		injected = p
	}
	if injected.Sites == nil {
		panic("archive module requires Sites port (from services/sites)")
	}
	if injected.Aggregators == nil {
		panic("archive module requires Aggregators port (from services/aggregate)")
	}

	svc := asvc.New(
		deps.PG,
		arepo.NewPG(),
		asvc.FromConfig(deps.Cfg),
		injected.Sites,
		injected.Aggregators,
	)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = adaptArchivePort{svc: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		ahttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }
