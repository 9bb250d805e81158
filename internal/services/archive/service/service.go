// Package service contains the archiving orchestrator: it decides per
// (site, period) cell whether a valid archive exists, launches
// computation for the cells that lack one, and reshapes fetched rows
// into the caller's result
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"statskeep/internal/core/period"
	"statskeep/internal/core/segment"
	"statskeep/internal/modkit/repokit"
	"statskeep/internal/platform/config"
	perr "statskeep/internal/platform/errors"
	"statskeep/internal/platform/logger"
	tim "statskeep/internal/platform/time"
	"statskeep/internal/services/archive/domain"
	"statskeep/internal/services/archive/repo"
	"statskeep/internal/services/archive/tables"
	"statskeep/internal/services/archive/writer"
)

// saltOption is the option row keying lock name hashes per installation
const saltOption = "statskeep_salt"

// Options tunes the orchestrator
type Options struct {
	// TriggerArchiving enables computing missing archives on demand;
	// off, readers only ever see precomputed data
	TriggerArchiving bool

	// TodayTTL is how long an OK_TEMPORARY archive of a still-open
	// period stays fresh before a read recomputes it
	TodayTTL time.Duration

	// AllowRestrictedSegments permits restricted segment dimensions
	AllowRestrictedSegments bool

	// SentinelAge is how old an allocation sentinel must be before
	// purge treats it as leaked
	SentinelAge time.Duration
}

// FromConfig reads ARCHIVE_* settings
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("ARCHIVE_")
	return Options{
		TriggerArchiving:        c.MayBool("BROWSER_TRIGGER", true),
		TodayTTL:                c.MayDuration("TODAY_TTL", 150*time.Second),
		AllowRestrictedSegments: c.MayBool("ALLOW_RESTRICTED_SEGMENTS", false),
		SentinelAge:             c.MayDuration("SENTINEL_AGE", 24*time.Hour),
	}
}

// Service defines the archive service contract
type Service interface {
	domain.ServicePort
}

// Svc implements the archive service
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
	opts   Options
	log    *logger.Logger
	sites  domain.SiteReader
	aggs   domain.AggregatorRegistry
	dims   segment.Registry

	now func() time.Time // test seam

	saltOnce sync.Once
	salt     string
	saltErr  error
}

// New constructs the archive service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[repo.Repo],
	opts Options,
	sites domain.SiteReader,
	aggs domain.AggregatorRegistry,
) *Svc {
	if db == nil {
		panic("archive.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("archive.Service requires a non nil Repo binder")
	}
	if sites == nil || aggs == nil {
		panic("archive.Service requires site reader and aggregator registry ports")
	}
	return &Svc{
		Repo:   binder.Bind(db),
		binder: binder,
		db:     db,
		opts:   opts,
		log:    logger.Named("archive"),
		sites:  sites,
		aggs:   aggs,
		dims:   segment.DefaultRegistry(),
		now:    time.Now,
	}
}

// instanceSalt lazily loads (or mints) the per-installation salt
func (s *Svc) instanceSalt(ctx context.Context) (string, error) {
	s.saltOnce.Do(func() {
		if err := s.Repo.EnsureOptionTable(ctx); err != nil {
			s.saltErr = err
			return
		}
		if err := s.Repo.EnsureLockTable(ctx); err != nil {
			s.saltErr = err
			return
		}
		v, ok, err := s.Repo.GetOption(ctx, saltOption)
		if err != nil {
			s.saltErr = err
			return
		}
		if ok {
			s.salt = v
			return
		}
		s.salt = uuid.NewString()
		s.saltErr = s.Repo.SetOption(ctx, saltOption, s.salt)
	})
	return s.salt, s.saltErr
}

// request is one parsed query with its per-invocation caches; built
// fresh per public call and discarded afterwards, never shared
type request struct {
	in      domain.QueryInput
	sites   []int64
	periods []period.Period
	seg     *segment.Segment
	plugins []string
	flags   []string

	// ensured records which cells were already checked this request
	ensured map[cellKey]bool
}

type cellKey struct {
	site int64
	rng  string
}

// parse validates the query and compiles segment and periods
func (s *Svc) parse(in domain.QueryInput) (*request, error) {
	kind, err := period.ParseKind(in.Period)
	if err != nil {
		return nil, err
	}
	periods, err := period.Parse(kind, in.Date, s.now())
	if err != nil {
		return nil, err
	}
	seg, err := segment.Parse(in.Segment, s.dims, segment.Options{
		AllowRestricted: s.opts.AllowRestrictedSegments,
	})
	if err != nil {
		return nil, err
	}
	if len(in.SiteIDs) == 0 {
		return nil, perr.InvalidArgf("at least one site id required")
	}
	plugins := pluginsForNames(in.Names)
	return &request{
		in:      in,
		sites:   in.SiteIDs,
		periods: periods,
		seg:     seg,
		plugins: plugins,
		flags:   domain.DoneFlagsFor(seg.Hash(), plugins),
		ensured: map[cellKey]bool{},
	}, nil
}

// coreMetrics are record names owned by the core plugin
var coreMetrics = map[string]bool{
	"nb_visits":           true,
	"nb_uniq_visitors":    true,
	"nb_actions":          true,
	"max_actions":         true,
	"bounce_count":        true,
	"nb_visits_converted": true,
	"sum_visit_length":    true,
}

// pluginsForNames derives the owning plugin per requested record:
// core metrics map to the core plugin, everything else to the leading
// name component (Referrers_keywords -> Referrers)
func pluginsForNames(names []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range names {
		p := domain.CorePlugin
		if !coreMetrics[n] {
			p = n
			for i := 0; i < len(n); i++ {
				if n[i] == '_' {
					p = n[:i]
					break
				}
			}
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// shouldSkip applies the no-data-possible rules: the period ends well
// before the site existed, or starts in the future
func (s *Svc) shouldSkip(ctx context.Context, siteID int64, p period.Period) (bool, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	if p.Start().AddDate(0, 0, -2).After(today) {
		return true, nil
	}
	site, err := s.sites.CreationDate(ctx, siteID)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return false, perr.NotFoundf("unknown site %d", siteID)
		}
		return false, err
	}
	if p.End().AddDate(0, 0, 2).Before(site.CreatedAt.Start()) {
		return true, nil
	}
	return false, nil
}

// freshness returns the minimum acceptable ts_archived for a period, and
// whether archives of it finalize as temporary. Periods that are still
// open (they include today or end later) go stale after TodayTTL;
// closed periods have no floor
func (s *Svc) freshness(p period.Period) (minTS *time.Time, temporary bool) {
	today := s.now().UTC()
	var floor time.Time
	if !p.End().Before(today.Truncate(24 * time.Hour)) {
		floor = today.Add(-s.opts.TodayTTL)
		temporary = true
	}
	return tim.Ptr(floor), temporary
}

// ensureCell guarantees a usable archive exists for one (site, period)
// cell, computing it when allowed. Skipped and disabled cells are not
// errors; the read side simply finds nothing
func (s *Svc) ensureCell(ctx context.Context, req *request, siteID int64, p period.Period) error {
	key := cellKey{site: siteID, rng: p.RangeString()}
	if req.ensured[key] {
		return nil
	}
	req.ensured[key] = true

	skip, err := s.shouldSkip(ctx, siteID, p)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	minTS, temporary := s.freshness(p)
	params := domain.Params{SiteID: siteID, Period: p, Segment: req.seg}

	// every requested plugin needs its own usable flag (or the bare
	// all-plugins one); an archive computed for plugin A must not
	// short-circuit a later request for plugin B
	plugins := req.plugins
	if len(plugins) == 0 {
		plugins = []string{domain.CorePlugin}
	}
	hash := req.seg.Hash()
	var missing []string
	for _, plugin := range plugins {
		flags := []string{domain.DoneFlag(hash, ""), domain.DoneFlag(hash, plugin)}
		found, err := s.Repo.GetArchiveIDAndVisits(ctx, params, flags, minTS)
		if err == nil && found.ExistingRecords {
			continue
		}
		if err != nil && !perr.IsCode(err, perr.ErrorCodeNotFound) {
			return err
		}
		missing = append(missing, plugin)
	}
	if len(missing) == 0 {
		return nil
	}
	if !s.opts.TriggerArchiving {
		return nil
	}
	return s.archiveCell(ctx, params, missing, temporary)
}

// archiveCell runs the writer lifecycle around the plugin aggregators
// for one cell. Any aggregator error aborts the attempt: the flag stays
// ERROR and the error propagates
func (s *Svc) archiveCell(ctx context.Context, params domain.Params, plugins []string, temporary bool) error {
	salt, err := s.instanceSalt(ctx)
	if err != nil {
		return err
	}

	aggs := s.aggs.For(plugins)

	// flags cover the requested plugins plus everything that ran; a
	// plugin with no registered aggregator still gets its flag so the
	// next read finds the (empty) archive instead of recomputing
	covered := make([]string, 0, len(aggs)+len(plugins))
	seen := map[string]bool{}
	for _, agg := range aggs {
		if !seen[agg.Plugin()] {
			seen[agg.Plugin()] = true
			covered = append(covered, agg.Plugin())
		}
	}
	for _, pl := range plugins {
		if !seen[pl] {
			seen[pl] = true
			covered = append(covered, pl)
		}
	}

	w := writer.New(s.binder, s.db, s.log, params, covered, salt)
	lock, err := w.Init(ctx)
	if err != nil {
		return err
	}
	s.log.Debug().
		Int64("site_id", params.SiteID).
		Str("period", params.Period.RangeString()).
		Str("processing_lock", lock.String()).
		Int64("idarchive", w.ArchiveID()).
		Msg("archiving cell")

	for _, agg := range aggs {
		if err := agg.Aggregate(ctx, w); err != nil {
			w.Abort(ctx)
			return perr.Wrapf(err, perr.ErrorCodeDB, "aggregator %s failed", agg.Plugin())
		}
	}
	return w.Finalize(ctx, temporary)
}

// collectIDs resolves all archive ids for the request, batched per shard
// month
func (s *Svc) collectIDs(ctx context.Context, req *request) (map[time.Time][]int64, error) {
	byMonth := map[time.Time][]period.Period{}
	for _, p := range req.periods {
		m := tables.Month(p.Start())
		byMonth[m] = append(byMonth[m], p)
	}

	out := map[time.Time][]int64{}
	for m, periods := range byMonth {
		idsByFlag, err := s.Repo.GetArchiveIDs(ctx, m, req.sites, periods, req.flags)
		if err != nil {
			return nil, err
		}
		seen := map[int64]bool{}
		for _, byRange := range idsByFlag {
			for _, ids := range byRange {
				for _, id := range ids {
					if !seen[id] {
						seen[id] = true
						out[m] = append(out[m], id)
					}
				}
			}
		}
	}
	return out, nil
}

// fetch runs the full read path: ensure archives, collect ids, pull rows
func (s *Svc) fetch(
	ctx context.Context,
	req *request,
	names []string,
	kind domain.RecordKind,
	subtable int64,
) ([]domain.ArchiveRow, error) {
	for _, siteID := range req.sites {
		for _, p := range req.periods {
			if err := s.ensureCell(ctx, req, siteID, p); err != nil {
				return nil, err
			}
		}
	}

	idsByMonth, err := s.collectIDs(ctx, req)
	if err != nil {
		return nil, err
	}

	var rows []domain.ArchiveRow
	for m, ids := range idsByMonth {
		part, err := s.Repo.GetArchiveData(ctx, m, ids, names, kind, subtable)
		if err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

// GetNumeric returns numeric metrics in the normalized shape
func (s *Svc) GetNumeric(ctx context.Context, in domain.QueryInput) (*domain.Result, error) {
	req, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	rows, err := s.fetch(ctx, req, in.Names, domain.KindNumeric, 0)
	if err != nil {
		return nil, err
	}
	return normalizeNumeric(req, rows), nil
}

// GetBlob returns decoded blob tables without subtable resolution
func (s *Svc) GetBlob(ctx context.Context, in domain.QueryInput) (*domain.Result, error) {
	req, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	rows, err := s.fetch(ctx, req, in.Names, domain.KindBlob, in.SubtableID)
	if err != nil {
		return nil, err
	}
	return normalizeTables(req, rows, in.Names, in.SubtableID, false, 0), nil
}

// GetDataTable returns the root table for one record name
func (s *Svc) GetDataTable(ctx context.Context, in domain.QueryInput) (*domain.Result, error) {
	req, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	if len(in.Names) != 1 {
		return nil, perr.InvalidArgf("datatable queries take exactly one record name")
	}
	rows, err := s.fetch(ctx, req, in.Names, domain.KindBlob, in.SubtableID)
	if err != nil {
		return nil, err
	}
	return normalizeTables(req, rows, in.Names, in.SubtableID, false, 0), nil
}

// GetDataTableExpanded returns the table with subtables resolved in
// place, breadth first, from the blobs fetched in the same round trip
func (s *Svc) GetDataTableExpanded(ctx context.Context, in domain.QueryInput) (*domain.Result, error) {
	req, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	if len(in.Names) != 1 {
		return nil, perr.InvalidArgf("datatable queries take exactly one record name")
	}
	rows, err := s.fetch(ctx, req, in.Names, domain.KindBlob, domain.SubtableAll)
	if err != nil {
		return nil, err
	}
	return normalizeTables(req, rows, in.Names, 0, true, in.Depth), nil
}

// Invalidate flips done flags across every shard for the given sites and
// dates; the next read recomputes the affected archives
func (s *Svc) Invalidate(ctx context.Context, in domain.InvalidateInput) (int64, error) {
	dates := make([]time.Time, len(in.Dates))
	for i, d := range in.Dates {
		t, err := time.Parse(period.DateLayout, d)
		if err != nil {
			return 0, perr.InvalidArgf("bad date %q", d)
		}
		dates[i] = t
	}
	months, err := s.Repo.ListShardMonths(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, m := range months {
		n, err := s.Repo.InvalidateArchives(ctx, m, in.SiteIDs, dates)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// PurgeErrored garbage-collects errored and invalidated archives plus
// leaked sentinels in one shard month
func (s *Svc) PurgeErrored(ctx context.Context, in domain.PurgeInput) (int64, error) {
	t, err := time.Parse(period.DateLayout, in.Month)
	if err != nil {
		return 0, perr.InvalidArgf("bad month %q", in.Month)
	}
	return s.Repo.PurgeErrored(ctx, tables.Month(t), s.opts.SentinelAge)
}
