package service

import (
	"context"

	"statskeep/internal/core/datatable"
	archdom "statskeep/internal/services/archive/domain"
	"statskeep/internal/services/aggregate/repo"
)

// referrersPlugin is the bundled blob plugin: a keyword table whose rows
// carry a per-source subtable, exercising the full flatten and resolve
// round trip
const referrersPlugin = "Referrers"

type referrers struct {
	repo repo.Repo
}

func (referrers) Plugin() string { return referrersPlugin }

func (a referrers) Aggregate(ctx context.Context, ar archdom.ArchiveContext) error {
	rows, err := a.repo.ReferrerKeywords(ctx, ar.SiteID(), ar.Period(), ar.Segment())
	if err != nil {
		return err
	}

	table := buildKeywordTable(rows)
	flat, err := datatable.Flatten(table)
	if err != nil {
		return err
	}
	byID := make(map[int64][]byte, len(flat))
	for id, t := range flat {
		blob, err := datatable.Encode(t)
		if err != nil {
			return err
		}
		byID[id] = blob
	}
	return ar.InsertBlob(ctx, referrersPlugin, byID)
}

// buildKeywordTable groups rows into keyword -> sources. Input arrives
// ordered by visits desc, so both levels keep that order
func buildKeywordTable(rows []repo.KeywordRow) *datatable.Table {
	root := datatable.New()
	index := map[string]int{}
	for _, r := range rows {
		i, ok := index[r.Keyword]
		if !ok {
			i = len(root.Rows)
			index[r.Keyword] = i
			root.Rows = append(root.Rows, datatable.Row{
				Label:    r.Keyword,
				Columns:  map[string]float64{"nb_visits": 0},
				Subtable: datatable.New(),
			})
		}
		root.Rows[i].Columns["nb_visits"] += r.Visits
		root.Rows[i].Subtable.Rows = append(root.Rows[i].Subtable.Rows, datatable.Row{
			Label:   r.Source,
			Columns: map[string]float64{"nb_visits": r.Visits},
		})
	}
	return root
}
