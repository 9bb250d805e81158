package service

import (
	"sort"
	"strconv"
	"strings"

	"statskeep/internal/core/datatable"
	"statskeep/internal/services/archive/domain"
)

// The normalizer turns the raw per (site, period, name) row soup into
// the shape the caller expects, keyed by query cardinality:
//
//	1 site, 1 period        bare value map (zero-filled for numerics)
//	1 site, N periods       map keyed by pretty period label
//	N sites, 1 period       map keyed by site id
//	N sites, N periods      two-level map, site then pretty label
//
// Force flags pin the corresponding index level even at cardinality one.
// Period keys are always rewritten from the internal range string to the
// pretty label before leaving this package

// cell groups the rows of one (site, period) pair
type cell struct {
	numeric map[string]float64
	blobs   map[string][]byte
	meta    domain.CellMeta
}

// collate groups rows by (site, range string). Rows arrive ordered by
// ts_archived, so when two archives carry the same name the newer value
// wins
func collate(rows []domain.ArchiveRow) map[cellKey]*cell {
	out := map[cellKey]*cell{}
	for _, r := range rows {
		key := cellKey{site: r.SiteID, rng: r.Period.RangeString()}
		c, ok := out[key]
		if !ok {
			c = &cell{numeric: map[string]float64{}, blobs: map[string][]byte{}}
			c.meta = domain.CellMeta{
				SiteID:     r.SiteID,
				Period:     r.Period.RangeString(),
				PrettyDate: r.Period.Pretty(),
			}
			out[key] = c
		}
		if r.Blob != nil {
			c.blobs[r.Name] = r.Blob
		} else {
			c.numeric[r.Name] = r.Value
		}
		if r.TS.After(c.meta.TSArchived) {
			c.meta.TSArchived = r.TS
		}
	}
	return out
}

// indexing decides which levels of the result stay maps
func indexing(req *request) (bySite, byDate bool) {
	bySite = len(req.sites) > 1 || req.in.ForceIndexedBySite
	byDate = len(req.periods) > 1 || req.in.ForceIndexedByDate
	return
}

// normalizeNumeric builds the numeric result. Cells with no rows are
// synthesized with zero values: absence of a record means zero, and the
// caller asked about that cell explicitly
func normalizeNumeric(req *request, rows []domain.ArchiveRow) *domain.Result {
	cells := collate(rows)
	bySite, byDate := indexing(req)

	values := func(key cellKey) map[string]float64 {
		m := map[string]float64{}
		for _, n := range req.in.Names {
			m[n] = 0
		}
		if c, ok := cells[key]; ok {
			for n, v := range c.numeric {
				m[n] = v
			}
		}
		return m
	}

	res := &domain.Result{Meta: collectMeta(cells)}
	switch {
	case !bySite && !byDate:
		res.Simple = values(cellKey{site: req.sites[0], rng: req.periods[0].RangeString()})
	case bySite && !byDate:
		idx := map[string]any{}
		for _, site := range req.sites {
			idx[strconv.FormatInt(site, 10)] = values(cellKey{site: site, rng: req.periods[0].RangeString()})
		}
		res.Indexed = idx
	case !bySite && byDate:
		idx := map[string]any{}
		for _, p := range req.periods {
			idx[p.Pretty()] = values(cellKey{site: req.sites[0], rng: p.RangeString()})
		}
		res.Indexed = idx
	default:
		idx := map[string]any{}
		for _, site := range req.sites {
			inner := map[string]any{}
			for _, p := range req.periods {
				inner[p.Pretty()] = values(cellKey{site: site, rng: p.RangeString()})
			}
			idx[strconv.FormatInt(site, 10)] = inner
		}
		res.Indexed = idx
	}
	return res
}

// normalizeTables builds the blob result: one table per cell, keyed by
// the same indexing rule with "/" joining two levels. Expansion resolves
// subtable links against the blobs fetched for the same cell. An
// explicit subtable read stores its rows under the suffixed name, so the
// lookup key follows the same suffix rule while the result stays keyed
// by the requested name
func normalizeTables(
	req *request,
	rows []domain.ArchiveRow,
	names []string,
	subtable int64,
	expand bool,
	depth int,
) *domain.Result {
	cells := collate(rows)
	bySite, byDate := indexing(req)

	res := &domain.Result{
		Tables: map[string]*datatable.Table{},
		Meta:   collectMeta(cells),
	}
	for _, site := range req.sites {
		for _, p := range req.periods {
			key := cellKey{site: site, rng: p.RangeString()}
			c, ok := cells[key]
			if !ok {
				continue
			}
			for _, name := range names {
				stored := name
				if subtable > 0 {
					stored = datatable.BlobName(name, subtable)
				}
				blob, ok := c.blobs[stored]
				if !ok {
					continue
				}
				table, _ := datatable.Decode(blob)
				if expand {
					table = datatable.Resolve(name, table, c.blobs, depth)
				}
				res.Tables[tableKey(bySite, byDate, site, p.Pretty(), name, len(names) > 1)] = table
			}
		}
	}
	return res
}

// tableKey composes the index key for one table result
func tableKey(bySite, byDate bool, site int64, pretty, name string, multiName bool) string {
	var parts []string
	if bySite {
		parts = append(parts, strconv.FormatInt(site, 10))
	}
	if byDate {
		parts = append(parts, pretty)
	}
	if multiName {
		parts = append(parts, name)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "/")
}

// collectMeta emits one meta entry per requested cell that had rows,
// ordered by site then period for stable output
func collectMeta(cells map[cellKey]*cell) []domain.CellMeta {
	var out []domain.CellMeta
	for _, c := range cells {
		out = append(out, c.meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SiteID != out[j].SiteID {
			return out[i].SiteID < out[j].SiteID
		}
		return out[i].Period < out[j].Period
	})
	return out
}
