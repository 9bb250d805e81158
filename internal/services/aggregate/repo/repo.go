// Package repo provides postgres access to the raw visit log
package repo

import (
	"context"
	"time"

	"statskeep/internal/core/period"
	"statskeep/internal/core/segment"
	"statskeep/internal/modkit/repokit"
	perr "statskeep/internal/platform/errors"
)

// Totals are the visit counters one aggregation pass produces
type Totals struct {
	Visits         float64
	UniqVisitors   float64
	Actions        float64
	MaxActions     float64
	BounceCount    float64
	Converted      float64
	SumVisitLength float64
}

// KeywordRow is one (keyword, source) bucket of referrer traffic
type KeywordRow struct {
	Keyword string
	Source  string
	Visits  float64
}

// Repo is the aggregation read surface over the raw visit log
type Repo interface {
	EnsureSchema(ctx context.Context) error
	VisitTotals(ctx context.Context, siteID int64, p period.Period, seg *segment.Segment) (Totals, error)
	ReferrerKeywords(ctx context.Context, siteID int64, p period.Period, seg *segment.Segment) ([]KeywordRow, error)
	InsertVisit(ctx context.Context, v Visit) error
}

// Visit is one raw log row; only the columns the bundled aggregators
// and segment dimensions read
type Visit struct {
	SiteID         int64
	VisitorID      string
	LastActionTime time.Time
	TotalActions   int
	TotalTime      int
	GoalConverted  bool
	BrowserName    string
	BrowserVersion string
	OS             string
	DeviceType     string
	Country        string
	Region         string
	City           string
	Returning      string
	RefererType    string
	RefererName    string
	RefererKeyword string
	IP             string
}

type (
	// PG is a binder that can bind the repo to a Queryer or TxRunner
	PG struct{}
	// queries implements the Repo interface
	queries struct{ q repokit.Queryer }
)

// NewPG returns a binder that can bind the repo to a Queryer or TxRunner
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind wires a Queryer to the repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

func (r *queries) EnsureSchema(ctx context.Context) error {
	const sql = `
CREATE TABLE IF NOT EXISTS log_visit (
	idvisit                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	idsite                 BIGINT NOT NULL,
	idvisitor              TEXT NOT NULL,
	visit_last_action_time TIMESTAMPTZ NOT NULL,
	visit_total_actions    INT NOT NULL DEFAULT 0,
	visit_total_time       INT NOT NULL DEFAULT 0,
	visit_goal_converted   BOOLEAN NOT NULL DEFAULT FALSE,
	config_browser_name    TEXT NOT NULL DEFAULT '',
	config_browser_version TEXT NOT NULL DEFAULT '',
	config_os              TEXT NOT NULL DEFAULT '',
	config_device_type     TEXT NOT NULL DEFAULT '',
	location_country       TEXT NOT NULL DEFAULT '',
	location_region        TEXT NOT NULL DEFAULT '',
	location_city          TEXT NOT NULL DEFAULT '',
	location_ip            TEXT NOT NULL DEFAULT '',
	visitor_returning      TEXT NOT NULL DEFAULT 'new',
	referer_type           TEXT NOT NULL DEFAULT '',
	referer_name           TEXT NOT NULL DEFAULT '',
	referer_keyword        TEXT NOT NULL DEFAULT ''
)
`
	if _, err := r.q.Exec(ctx, sql); err != nil {
		return perr.FromPostgresf(err, "aggregate ensure schema")
	}
	const idx = `
CREATE INDEX IF NOT EXISTS log_visit_site_time
ON log_visit (idsite, visit_last_action_time)
`
	if _, err := r.q.Exec(ctx, idx); err != nil {
		return perr.FromPostgresf(err, "aggregate ensure index")
	}
	return nil
}

// window converts the inclusive period dates into a half-open timestamp
// range suitable for a BETWEEN-free scan
func window(p period.Period) (time.Time, time.Time) {
	return p.Start(), p.End().AddDate(0, 0, 1)
}

func (r *queries) VisitTotals(
	ctx context.Context, siteID int64, p period.Period, seg *segment.Segment,
) (Totals, error) {
	sql := `
SELECT
	COUNT(*)::float8,
	COUNT(DISTINCT idvisitor)::float8,
	COALESCE(SUM(visit_total_actions), 0)::float8,
	COALESCE(MAX(visit_total_actions), 0)::float8,
	(COUNT(*) FILTER (WHERE visit_total_actions <= 1))::float8,
	(COUNT(*) FILTER (WHERE visit_goal_converted))::float8,
	COALESCE(SUM(visit_total_time), 0)::float8
FROM log_visit
WHERE idsite = $1 AND visit_last_action_time >= $2 AND visit_last_action_time < $3
`
	args := []any{siteID}
	from, to := window(p)
	args = append(args, from, to)
	if frag, fargs := seg.Where(len(args) + 1); frag != "" {
		sql += " AND " + frag
		args = append(args, fargs...)
	}

	var t Totals
	row := r.q.QueryRow(ctx, sql, args...)
	err := row.Scan(
		&t.Visits, &t.UniqVisitors, &t.Actions, &t.MaxActions,
		&t.BounceCount, &t.Converted, &t.SumVisitLength,
	)
	if err != nil {
		return Totals{}, perr.FromPostgresf(err, "aggregate visit totals")
	}
	return t, nil
}

func (r *queries) ReferrerKeywords(
	ctx context.Context, siteID int64, p period.Period, seg *segment.Segment,
) ([]KeywordRow, error) {
	sql := `
SELECT referer_keyword, referer_name, COUNT(*)::float8 AS visits
FROM log_visit
WHERE idsite = $1 AND visit_last_action_time >= $2 AND visit_last_action_time < $3
AND referer_keyword <> ''
`
	args := []any{siteID}
	from, to := window(p)
	args = append(args, from, to)
	if frag, fargs := seg.Where(len(args) + 1); frag != "" {
		sql += " AND " + frag
		args = append(args, fargs...)
	}
	sql += `
GROUP BY referer_keyword, referer_name
ORDER BY visits DESC, referer_keyword ASC
`
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, perr.FromPostgresf(err, "aggregate referrer keywords")
	}
	defer rows.Close()
	var out []KeywordRow
	for rows.Next() {
		var k KeywordRow
		if err := rows.Scan(&k.Keyword, &k.Source, &k.Visits); err != nil {
			return nil, perr.FromPostgresf(err, "aggregate scan keyword row")
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgresf(err, "aggregate iterate keywords")
	}
	return out, nil
}

func (r *queries) InsertVisit(ctx context.Context, v Visit) error {
	const sql = `
INSERT INTO log_visit (
	idsite, idvisitor, visit_last_action_time, visit_total_actions,
	visit_total_time, visit_goal_converted,
	config_browser_name, config_browser_version, config_os, config_device_type,
	location_country, location_region, location_city, location_ip,
	visitor_returning, referer_type, referer_name, referer_keyword
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
`
	_, err := r.q.Exec(ctx, sql,
		v.SiteID, v.VisitorID, v.LastActionTime, v.TotalActions,
		v.TotalTime, v.GoalConverted,
		v.BrowserName, v.BrowserVersion, v.OS, v.DeviceType,
		v.Country, v.Region, v.City, v.IP,
		v.Returning, v.RefererType, v.RefererName, v.RefererKeyword,
	)
	if err != nil {
		return perr.FromPostgresf(err, "aggregate insert visit")
	}
	return nil
}
