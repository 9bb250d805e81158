// Package service contains the bundled log aggregators and the plugin
// registry the archive engine runs them through
package service

import (
	"context"

	"statskeep/internal/core/period"
	"statskeep/internal/core/segment"
	"statskeep/internal/modkit/repokit"
	"statskeep/internal/platform/logger"
	"statskeep/internal/platform/store"
	"statskeep/internal/services/aggregate/repo"
)

// TotalsSource produces the visit counters for one aggregation pass
type TotalsSource interface {
	VisitTotals(ctx context.Context, siteID int64, p period.Period, seg *segment.Segment) (repo.Totals, error)
}

// Service is the aggregate service contract
type Service interface {
	EnsureSchema(ctx context.Context) error
	RecordVisit(ctx context.Context, v repo.Visit) error
}

// Svc implements the aggregate service
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
	log    *logger.Logger

	// mirror receives a copy of every recorded visit when set
	mirror *CHSource
}

// New constructs the aggregate service; ch may be nil
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo], ch store.Clickhouse) *Svc {
	if db == nil {
		panic("aggregate.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("aggregate.Service requires a non nil Repo binder")
	}
	s := &Svc{
		Repo:   binder.Bind(db),
		binder: binder,
		db:     db,
		log:    logger.Named("aggregate"),
	}
	if ch != nil {
		s.mirror = NewCHSource(ch)
	}
	return s
}

// EnsureSchema creates the raw visit log when missing
func (s *Svc) EnsureSchema(ctx context.Context) error {
	return s.Repo.EnsureSchema(ctx)
}

// RecordVisit appends one raw visit row, mirroring it to the columnar
// store when one is configured. Mirror failures are logged, not fatal:
// postgres remains the source of truth
func (s *Svc) RecordVisit(ctx context.Context, v repo.Visit) error {
	if err := s.Repo.InsertVisit(ctx, v); err != nil {
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.Append(ctx, v); err != nil {
			s.log.Warn().Err(err).Int64("site_id", v.SiteID).Msg("clickhouse mirror append failed")
		}
	}
	return nil
}

// Totals returns the counter source the registry hands to the core
// aggregator: the columnar mirror for unsegmented windows when present,
// postgres otherwise
func (s *Svc) Totals() TotalsSource {
	if s.mirror == nil {
		return s.Repo
	}
	return &totalsRouter{pg: s.Repo, ch: s.mirror}
}

// totalsRouter prefers the columnar mirror for queries it can serve.
// Segment filters compile to postgres placeholders, so segmented
// windows always go to the raw log
type totalsRouter struct {
	pg repo.Repo
	ch *CHSource
}

func (t *totalsRouter) VisitTotals(
	ctx context.Context, siteID int64, p period.Period, seg *segment.Segment,
) (repo.Totals, error) {
	if seg.IsEmpty() {
		return t.ch.VisitTotals(ctx, siteID, p, seg)
	}
	return t.pg.VisitTotals(ctx, siteID, p, seg)
}
