// Package http provides http transport for the site registry
package http

import (
	stdhttp "net/http"

	"statskeep/internal/modkit/httpkit"
	"statskeep/internal/services/sites/domain"
	svc "statskeep/internal/services/sites/service"
)

// Register mounts site endpoints on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}

	httpkit.PostJSON[domain.CreateInput](r, "/create", h.create)
	httpkit.PostJSON[domain.GetInput](r, "/get", h.get)
	httpkit.PostJSON[domain.ListInput](r, "/list", h.list)
}

type handlers struct{ svc svc.Service }

// swagger:route POST /sites/create Sites sitesCreate
// @Summary Register a site
// @Tags Sites
// @Accept json
// @Produce json
// @Param payload body domain.CreateInput true "Site"
// @Success 200 {object} domain.Site "ok"
// @Router /sites/create [post]
func (h *handlers) create(r *stdhttp.Request, in domain.CreateInput) (any, error) {
	return h.svc.Create(r.Context(), in)
}

// swagger:route POST /sites/get Sites sitesGet
// @Summary Fetch one site
// @Tags Sites
// @Accept json
// @Produce json
// @Param payload body domain.GetInput true "Site id"
// @Success 200 {object} domain.Site "ok"
// @Router /sites/get [post]
func (h *handlers) get(r *stdhttp.Request, in domain.GetInput) (any, error) {
	return h.svc.Get(r.Context(), in)
}

// swagger:route POST /sites/list Sites sitesList
// @Summary List sites
// @Tags Sites
// @Accept json
// @Produce json
// @Param payload body domain.ListInput true "Paging"
// @Success 200 {array} domain.Site "ok"
// @Router /sites/list [post]
func (h *handlers) list(r *stdhttp.Request, in domain.ListInput) (any, error) {
	return h.svc.List(r.Context(), in)
}
