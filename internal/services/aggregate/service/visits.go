package service

import (
	"context"

	archdom "statskeep/internal/services/archive/domain"
)

// visitsSummary is the core aggregator: every archive gets its counters
// so plugin reads can fall back to them for visit totals
type visitsSummary struct {
	src TotalsSource
}

func (visitsSummary) Plugin() string { return archdom.CorePlugin }

func (a visitsSummary) Aggregate(ctx context.Context, ar archdom.ArchiveContext) error {
	t, err := a.src.VisitTotals(ctx, ar.SiteID(), ar.Period(), ar.Segment())
	if err != nil {
		return err
	}
	metrics := []struct {
		name  string
		value float64
	}{
		{"nb_visits", t.Visits},
		{"nb_uniq_visitors", t.UniqVisitors},
		{"nb_actions", t.Actions},
		{"max_actions", t.MaxActions},
		{"bounce_count", t.BounceCount},
		{"nb_visits_converted", t.Converted},
		{"sum_visit_length", t.SumVisitLength},
	}
	for _, m := range metrics {
		if err := ar.InsertNumeric(ctx, m.name, m.value); err != nil {
			return err
		}
	}
	return nil
}
