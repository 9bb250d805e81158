package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"

	"statskeep/internal/modkit"
	"statskeep/internal/modkit/module"
	"statskeep/internal/platform/config"
	"statskeep/internal/platform/logger"
	"statskeep/internal/platform/store"

	aggmod "statskeep/internal/services/aggregate/module"
	archdom "statskeep/internal/services/archive/domain"
	archivemod "statskeep/internal/services/archive/module"
	"statskeep/internal/services/archive/tables"
	sitesmod "statskeep/internal/services/sites/module"
)

func mustSetEnv(k, v string) {
	if v != "" {
		_ = os.Setenv(k, v)
	}
}

func parseSites(csv string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func splitCSV(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", true),
		},
		CH: store.CHConfig{
			Enabled:    chCfg.MayBool("ENABLED", false),
			URL:        chCfg.MayString("DBURL", ""),
			ClientName: "statskeep",
			ClientTag:  "archiver",
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	var (
		sitesCSV   = flag.String("sites", "", "comma separated site ids, e.g. 1,2")
		periodStr  = flag.String("period", "day", "day|week|month|year|range")
		dateStr    = flag.String("date", "", "date expression, e.g. 2025-08-01, last7, 2025-08-01,2025-08-20")
		segmentStr = flag.String("segment", "", "segment expression, e.g. browserName==ff")
		recordsCSV = flag.String("records", "nb_visits", "comma separated record names to archive")
		invalidate = flag.String("invalidate", "", "comma separated dates to invalidate instead of archiving")
		purgeMonth = flag.String("purge", "", "purge errored archives in this shard month (any date inside)")
	)
	flag.Parse()

	siteIDs, err := parseSites(*sitesCSV)
	if err != nil {
		log.Fatalf("bad -sites: %v", err)
	}
	if len(siteIDs) == 0 {
		log.Fatal("-sites is required")
	}

	// the worker always computes; browser trigger config is for the API
	mustSetEnv("ARCHIVE_BROWSER_TRIGGER", "1")

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		Log: *l,
	}

	ctx := context.Background()
	if err := tables.EnsureTemplates(ctx, st.PG); err != nil {
		l.Fatal().Err(err).Msg("archive template bootstrap failed")
	}

	// dependency modules first, then the engine with their ports
	sm := sitesmod.New(deps)
	am := aggmod.New(deps)

	if err := sm.Service().EnsureSchema(ctx); err != nil {
		l.Fatal().Err(err).Msg("sites schema bootstrap failed")
	}
	if err := am.Service().EnsureSchema(ctx); err != nil {
		l.Fatal().Err(err).Msg("visit log schema bootstrap failed")
	}

	arch := archivemod.New(
		deps,
		modkit.WithPorts(archivemod.Ports{
			Sites:       module.MustPortsOf[sitesmod.Ports](sm).Reader,
			Aggregators: module.MustPortsOf[aggmod.Ports](am).Aggregators,
		}),
	)

	module.Register(sm.Name(), sm.Ports())
	module.Register(am.Name(), am.Ports())
	module.Register(arch.Name(), arch.Ports())

	port := module.MustPortsOf[archdom.ServicePort](arch)

	switch {
	case *purgeMonth != "":
		n, err := port.PurgeErrored(ctx, archdom.PurgeInput{Month: *purgeMonth})
		if err != nil {
			l.Fatal().Err(err).Msg("purge failed")
		}
		l.Info().Int64("affected", n).Str("month", *purgeMonth).Msg("purge done")

	case *invalidate != "":
		n, err := port.Invalidate(ctx, archdom.InvalidateInput{
			SiteIDs: siteIDs,
			Dates:   splitCSV(*invalidate),
		})
		if err != nil {
			l.Fatal().Err(err).Msg("invalidate failed")
		}
		l.Info().Int64("affected", n).Msg("invalidate done")

	default:
		if *dateStr == "" {
			log.Fatal("-date is required")
		}
		res, err := port.GetNumeric(ctx, archdom.QueryInput{
			SiteIDs:            siteIDs,
			Period:             *periodStr,
			Date:               *dateStr,
			Segment:            *segmentStr,
			Names:              splitCSV(*recordsCSV),
			ForceIndexedBySite: true,
			ForceIndexedByDate: true,
		})
		if err != nil {
			l.Fatal().Err(err).Msg("archiving failed")
		}
		l.Info().
			Int("sites", len(siteIDs)).
			Int("cells", len(res.Meta)).
			Msg("archiving done")
	}
}
