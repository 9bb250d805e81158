package service

import (
	"context"

	"statskeep/internal/core/period"
	"statskeep/internal/core/segment"
	perr "statskeep/internal/platform/errors"
	"statskeep/internal/platform/store"
	"statskeep/internal/services/aggregate/repo"
)

// visitsTable is the columnar mirror of log_visit; provisioned out of
// band like the rest of the clickhouse schema
const visitsTable = "statskeep_visits"

// CHSource serves unsegmented visit totals from the columnar mirror
type CHSource struct {
	ch store.Clickhouse
}

// NewCHSource wraps a clickhouse seam
func NewCHSource(ch store.Clickhouse) *CHSource {
	if ch == nil {
		panic("aggregate: CHSource requires a non nil clickhouse seam")
	}
	return &CHSource{ch: ch}
}

// Append mirrors one visit row
func (c *CHSource) Append(ctx context.Context, v repo.Visit) error {
	row := []any{
		v.SiteID,
		v.VisitorID,
		v.LastActionTime,
		int32(v.TotalActions),
		int32(v.TotalTime),
		v.GoalConverted,
	}
	return c.ch.Insert(ctx, visitsTable, [][]any{row})
}

// VisitTotals computes the core counters over the mirror. Only the
// empty segment is supported; segmented windows belong to postgres
func (c *CHSource) VisitTotals(
	ctx context.Context, siteID int64, p period.Period, seg *segment.Segment,
) (repo.Totals, error) {
	if !seg.IsEmpty() {
		return repo.Totals{}, perr.InvalidArgf("columnar source cannot apply segments")
	}
	const sql = `
SELECT
	toFloat64(count()),
	toFloat64(uniqExact(idvisitor)),
	toFloat64(sum(actions)),
	toFloat64(max(actions)),
	toFloat64(countIf(actions <= 1)),
	toFloat64(countIf(converted)),
	toFloat64(sum(duration))
FROM ` + visitsTable + `
WHERE idsite = ? AND ts >= ? AND ts < ?
`
	from := p.Start()
	to := p.End().AddDate(0, 0, 1)
	rows, err := c.ch.Query(ctx, sql, siteID, from, to)
	if err != nil {
		return repo.Totals{}, perr.Wrap(err, perr.ErrorCodeDB, "ch visit totals")
	}
	defer rows.Close()

	if !rows.Next() {
		return repo.Totals{}, rows.Err()
	}
	var t repo.Totals
	err = rows.Scan(
		&t.Visits, &t.UniqVisitors, &t.Actions, &t.MaxActions,
		&t.BounceCount, &t.Converted, &t.SumVisitLength,
	)
	if err != nil {
		return repo.Totals{}, perr.Wrap(err, perr.ErrorCodeDB, "ch visit totals scan")
	}
	return t, rows.Err()
}
