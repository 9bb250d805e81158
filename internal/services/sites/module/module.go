// Package module wires the site registry into the API using modkit
package module

import (
	"net/http"

	modkit "statskeep/internal/modkit"
	"statskeep/internal/modkit/httpkit"
	str "statskeep/internal/platform/strings"

	shttp "statskeep/internal/services/sites/http"
	srepo "statskeep/internal/services/sites/repo"
	ssvc "statskeep/internal/services/sites/service"
)

// Module implements the sites module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc *ssvc.Svc
}

// New constructs the sites module. The concrete type is returned so
// workers can reach Service() for schema bootstrap
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("sites"),
		modkit.WithPrefix("/sites"),
	}, opts...)...)

	svc := ssvc.New(deps.PG, srepo.NewPG())

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = Ports{Sites: adaptSitesPort{svc: svc}, Reader: creationReader{svc: svc}}

	external := b.Register
	m.register = func(r httpkit.Router) {
		shttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// Service exposes the concrete service for worker wiring
func (m *Module) Service() *ssvc.Svc { return m.svc }

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
