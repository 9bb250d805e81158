package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"statskeep/internal/core/period"
	perr "statskeep/internal/platform/errors"
	"statskeep/internal/services/archive/domain"
	"statskeep/internal/services/archive/tables"
)

// visit counter record names the selector always fetches alongside flags
const (
	nameVisits          = "nb_visits"
	nameVisitsConverted = "nb_visits_converted"
)

// undefinedTable is the SQLSTATE for a missing shard
const undefinedTable = "42P01"

// GetArchiveIDAndVisits resolves the newest usable archive for one
// (site, period, segment) cell. Among usable done flags the greatest
// idarchive wins; that is an explicit comparison, not result-set order,
// so reallocated ids cannot flip the outcome silently. Visit counters
// fall back to another usable archive (the all-plugins one) when the
// chosen archive does not carry them
//
// Not found means no usable flag row at all. An archive with a flag row
// and zero visits is found; the caller must not recompute it
func (r *queries) GetArchiveIDAndVisits(
	ctx context.Context,
	p domain.Params,
	doneFlags []string,
	minTS *time.Time,
) (*domain.FoundArchive, error) {
	shard := tables.NameForPeriod(tables.Numeric, p.Period)

	// the freshness bound applies to flags only: counters always come
	// from whichever archive a usable flag selected
	sql := fmt.Sprintf(`
SELECT idarchive, name, COALESCE(value, 0), ts_archived
FROM %s
WHERE idsite = $1 AND date1 = $2 AND date2 = $3 AND period = $4
AND (
	(name = ANY($5) AND ($6::timestamptz IS NULL OR ts_archived >= $6))
	OR name IN ($7, $8)
)
ORDER BY idarchive DESC
`, shard)

	rows, err := r.q.Query(ctx, sql,
		p.SiteID, p.Period.Start(), p.Period.End(), p.Period.ID(),
		doneFlags, minTS, nameVisits, nameVisitsConverted,
	)
	if err != nil {
		if perr.IsSQLState(err, undefinedTable) {
			return nil, perr.NotFoundf("no archive shard for %s", p.Period.RangeString())
		}
		return nil, perr.FromPostgres(err, "select archive flags")
	}
	defer rows.Close()

	type counters struct {
		visits, converted float64
		hasVisits         bool
	}
	var (
		chosenID int64
		chosenTS time.Time
		chosenV  domain.DoneValue
		usable   []int64
		byID     = map[int64]*counters{}
	)
	countersFor := func(id int64) *counters {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &counters{}
		byID[id] = c
		return c
	}
	for rows.Next() {
		var (
			id   int64
			name string
			val  float64
			ts   time.Time
		)
		if err := rows.Scan(&id, &name, &val, &ts); err != nil {
			return nil, perr.FromPostgres(err, "scan archive flag")
		}
		switch name {
		case nameVisits:
			c := countersFor(id)
			c.visits, c.hasVisits = val, true
		case nameVisitsConverted:
			countersFor(id).converted = val
		default:
			dv := domain.DoneValue(val)
			if !dv.Usable() {
				continue
			}
			usable = append(usable, id)
			if id > chosenID {
				chosenID, chosenTS, chosenV = id, ts, dv
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "iterate archive flags")
	}
	if chosenID == 0 {
		return nil, perr.NotFoundf("no usable archive for site %d period %s", p.SiteID, p.Period.RangeString())
	}

	found := &domain.FoundArchive{
		ID:              chosenID,
		TSArchived:      chosenTS,
		DoneValue:       chosenV,
		ExistingRecords: true,
	}
	if c, ok := byID[chosenID]; ok && c.hasVisits {
		found.Visits, found.VisitsConverted = c.visits, c.converted
		return found, nil
	}
	// counters missing on the chosen archive: newest usable archive that
	// carries them wins
	sort.Slice(usable, func(i, j int) bool { return usable[i] > usable[j] })
	for _, id := range usable {
		if c, ok := byID[id]; ok && c.hasVisits {
			found.Visits, found.VisitsConverted = c.visits, c.converted
			found.VisitsFromCore = true
			break
		}
	}
	return found, nil
}

// GetArchiveIDs batch-resolves the newest archive id per
// (site, flag, period) cell inside one shard month. The result maps
// flag name, then period range string, to archive ids. A missing shard
// yields an empty map
func (r *queries) GetArchiveIDs(
	ctx context.Context,
	month time.Time,
	siteIDs []int64,
	periods []period.Period,
	doneFlags []string,
) (map[string]map[string][]int64, error) {
	shard := tables.Name(tables.Numeric, month)

	var (
		cond string
		args = []any{siteIDs, doneFlags}
	)
	if len(periods) > 0 && periods[0].Kind() == period.KindRange {
		// ranges match on both bounds
		var ors []string
		n := 3
		for _, p := range periods {
			ors = append(ors, fmt.Sprintf("(date1 = $%d AND date2 = $%d)", n, n+1))
			args = append(args, p.Start(), p.End())
			n += 2
		}
		cond = fmt.Sprintf("period = %d AND (%s)", period.KindRange, strings.Join(ors, " OR "))
	} else {
		dates := make([]time.Time, len(periods))
		for i, p := range periods {
			dates[i] = p.Start()
		}
		kind := 0
		if len(periods) > 0 {
			kind = periods[0].ID()
		}
		cond = fmt.Sprintf("period = %d AND date1 = ANY($3)", kind)
		args = append(args, dates)
	}

	sql := fmt.Sprintf(`
SELECT idsite, name, date1, date2, MAX(idarchive)
FROM %s
WHERE idsite = ANY($1) AND name = ANY($2) AND value IN (%d, %d)
AND %s
GROUP BY idsite, name, date1, date2
`, shard, int(domain.DoneOK), int(domain.DoneOKTemporary), cond)

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		if perr.IsSQLState(err, undefinedTable) {
			return map[string]map[string][]int64{}, nil
		}
		return nil, perr.FromPostgres(err, "select archive ids")
	}
	defer rows.Close()

	out := map[string]map[string][]int64{}
	for rows.Next() {
		var (
			site   int64
			name   string
			d1, d2 time.Time
			id     int64
		)
		if err := rows.Scan(&site, &name, &d1, &d2, &id); err != nil {
			return nil, perr.FromPostgres(err, "scan archive id")
		}
		rangeStr := d1.Format(period.DateLayout) + "," + d2.Format(period.DateLayout)
		if out[name] == nil {
			out[name] = map[string][]int64{}
		}
		out[name][rangeStr] = append(out[name][rangeStr], id)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "iterate archive ids")
	}
	return out, nil
}

// GetArchiveData fetches numeric or blob rows for a set of archive ids
// subtable selects blob naming: 0 exact names, >0 the _<id> suffixed
// names, SubtableAll the bare name plus every _<digit...> suffix (the
// digit check replaces a regex)
func (r *queries) GetArchiveData(
	ctx context.Context,
	month time.Time,
	ids []int64,
	names []string,
	kind domain.RecordKind,
	subtable int64,
) ([]domain.ArchiveRow, error) {
	if len(ids) == 0 || len(names) == 0 {
		return nil, nil
	}

	tk := tables.Numeric
	valueCol := "COALESCE(value, 0)"
	if kind == domain.KindBlob {
		tk = tables.Blob
		valueCol = "value"
	}
	shard := tables.Name(tk, month)

	nameCond, args := nameCondition(names, kind, subtable)
	args = append([]any{ids}, args...)

	sql := fmt.Sprintf(`
SELECT idarchive, idsite, date1, date2, period, ts_archived, name, %s
FROM %s
WHERE idarchive = ANY($1) AND (%s)
ORDER BY ts_archived ASC, idarchive ASC
`, valueCol, shard, nameCond)

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		if perr.IsSQLState(err, undefinedTable) {
			// blob shards may legitimately not exist for a month
			return nil, nil
		}
		return nil, perr.FromPostgres(err, "select archive data")
	}
	defer rows.Close()

	var out []domain.ArchiveRow
	for rows.Next() {
		var (
			row      domain.ArchiveRow
			d1, d2   time.Time
			periodID int
		)
		dst := []any{&row.ArchiveID, &row.SiteID, &d1, &d2, &periodID, &row.TS, &row.Name}
		if kind == domain.KindBlob {
			dst = append(dst, &row.Blob)
		} else {
			dst = append(dst, &row.Value)
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, perr.FromPostgres(err, "scan archive data")
		}
		p, err := periodFromRow(period.Kind(periodID), d1, d2)
		if err != nil {
			return nil, err
		}
		row.Period = p
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "iterate archive data")
	}
	return out, nil
}

// nameCondition builds the name filter for GetArchiveData, placeholders
// starting at $2 ($1 is the archive id set)
func nameCondition(names []string, kind domain.RecordKind, subtable int64) (string, []any) {
	if kind == domain.KindNumeric || subtable == 0 {
		return "name = ANY($2)", []any{names}
	}
	if subtable > 0 {
		suffixed := make([]string, len(names))
		for i, n := range names {
			suffixed[i] = fmt.Sprintf("%s_%d", n, subtable)
		}
		return "name = ANY($2)", []any{suffixed}
	}

	// subtable "all": bare name or name_<id> where the character after
	// the underscore is a digit
	var (
		ors  []string
		args []any
	)
	n := 2
	for _, name := range names {
		like := escapeLike(name) + `\_%`
		ors = append(ors, fmt.Sprintf(
			"(name = $%d OR (name LIKE $%d AND substring(name from %d for 1) BETWEEN '0' AND '9'))",
			n, n+1, len(name)+2,
		))
		args = append(args, name, like)
		n += 2
	}
	return strings.Join(ors, " OR "), args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// periodFromRow reconstructs a period value from storage columns
func periodFromRow(k period.Kind, d1, d2 time.Time) (period.Period, error) {
	if k == period.KindRange {
		return period.NewRange(d1, d2)
	}
	p, err := period.New(k, d1)
	if err != nil {
		return period.Period{}, err
	}
	return p, nil
}
