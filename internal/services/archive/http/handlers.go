// Package http provides http transport for archive queries
package http

import (
	stdhttp "net/http"

	"statskeep/internal/modkit/httpkit"
	"statskeep/internal/services/archive/domain"
	svc "statskeep/internal/services/archive/service"
)

// Register mounts archive endpoints on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}

	// numeric metrics in the normalized shape
	httpkit.PostJSON[domain.QueryInput](r, "/numeric", h.numeric)

	// raw blob tables, no subtable resolution
	httpkit.PostJSON[domain.QueryInput](r, "/blob", h.blob)

	// one record as a datatable
	httpkit.PostJSON[domain.QueryInput](r, "/datatable", h.datatable)

	// one record with subtables resolved in place
	httpkit.PostJSON[domain.QueryInput](r, "/datatable/expanded", h.expanded)

	// maintenance
	httpkit.PostJSON[domain.InvalidateInput](r, "/invalidate", h.invalidate)
	httpkit.PostJSON[domain.PurgeInput](r, "/purge", h.purge)
}

type handlers struct{ svc svc.Service }

// CountResponse reports how many rows a maintenance call touched
type CountResponse struct {
	Affected int64 `json:"affected" example:"3"`
}

// swagger:route POST /archive/numeric Archive archiveNumeric
// @Summary Query numeric archive metrics
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body domain.QueryInput true "Query"
// @Success 200 {object} domain.Result "ok"
// @Router /archive/numeric [post]
func (h *handlers) numeric(r *stdhttp.Request, in domain.QueryInput) (any, error) {
	return h.svc.GetNumeric(r.Context(), in)
}

// swagger:route POST /archive/blob Archive archiveBlob
// @Summary Query blob archive records
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body domain.QueryInput true "Query"
// @Success 200 {object} domain.Result "ok"
// @Router /archive/blob [post]
func (h *handlers) blob(r *stdhttp.Request, in domain.QueryInput) (any, error) {
	return h.svc.GetBlob(r.Context(), in)
}

// swagger:route POST /archive/datatable Archive archiveDataTable
// @Summary Query one record as a datatable
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body domain.QueryInput true "Query"
// @Success 200 {object} domain.Result "ok"
// @Router /archive/datatable [post]
func (h *handlers) datatable(r *stdhttp.Request, in domain.QueryInput) (any, error) {
	return h.svc.GetDataTable(r.Context(), in)
}

// swagger:route POST /archive/datatable/expanded Archive archiveDataTableExpanded
// @Summary Query one record with subtables resolved
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body domain.QueryInput true "Query"
// @Success 200 {object} domain.Result "ok"
// @Router /archive/datatable/expanded [post]
func (h *handlers) expanded(r *stdhttp.Request, in domain.QueryInput) (any, error) {
	return h.svc.GetDataTableExpanded(r.Context(), in)
}

// swagger:route POST /archive/invalidate Archive archiveInvalidate
// @Summary Mark archives stale for given sites and dates
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body domain.InvalidateInput true "Target"
// @Success 200 {object} CountResponse "ok"
// @Router /archive/invalidate [post]
func (h *handlers) invalidate(r *stdhttp.Request, in domain.InvalidateInput) (any, error) {
	n, err := h.svc.Invalidate(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return CountResponse{Affected: n}, nil
}

// swagger:route POST /archive/purge Archive archivePurge
// @Summary Purge errored and invalidated archives in one shard month
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body domain.PurgeInput true "Target"
// @Success 200 {object} CountResponse "ok"
// @Router /archive/purge [post]
func (h *handlers) purge(r *stdhttp.Request, in domain.PurgeInput) (any, error) {
	n, err := h.svc.PurgeErrored(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return CountResponse{Affected: n}, nil
}
