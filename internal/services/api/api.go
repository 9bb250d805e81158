// Package api provides the HTTP API for the application
package api

import (
	"statskeep/internal/platform/config"
	"statskeep/internal/platform/logger"
	phttp "statskeep/internal/platform/net/http"
	"statskeep/internal/platform/store"

	"statskeep/internal/modkit"
	"statskeep/internal/modkit/httpkit"
	"statskeep/internal/modkit/module"
	"statskeep/internal/modkit/swaggerkit"

	aggmod "statskeep/internal/services/aggregate/module"
	metamod "statskeep/internal/services/api/meta/module"
	archivemod "statskeep/internal/services/archive/module"
	sitesmod "statskeep/internal/services/sites/module"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	EnableSwagger  bool
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
	}

	// Registry and aggregators come first; the archive engine consumes
	// their ports
	sites := sitesmod.New(deps)
	sitePorts := module.MustPortsOf[sitesmod.Ports](sites)

	aggregate := aggmod.New(deps)
	aggPorts := module.MustPortsOf[aggmod.Ports](aggregate)

	archive := archivemod.New(
		deps,
		modkit.WithPorts(archivemod.Ports{
			Sites:       sitePorts.Reader,
			Aggregators: aggPorts.Aggregators,
		}),
	)

	mods := []module.Module{
		metamod.New(deps),
		sites,
		aggregate, // worker-only, registered for its ports
		archive,
	}

	// versioned API with a common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		// Swagger + profiler
		swaggerkit.Mount(r, opt.EnableSwagger)
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.Register(m.Name(), m.Ports())

			// mount module routes under its Prefix()
			m.MountRoutes(api)
		}
	})
}
