// @title         Statskeep API
// @version       0.1.0
// @description   Archive queries, site registry and maintenance endpoints

package main

import (
	"context"

	"statskeep/internal/platform/config"
	"statskeep/internal/platform/logger"
	phttp "statskeep/internal/platform/net/http"
	"statskeep/internal/platform/store"

	aggrepo "statskeep/internal/services/aggregate/repo"
	"statskeep/internal/services/api"
	"statskeep/internal/services/archive/tables"
	sitesrepo "statskeep/internal/services/sites/repo"
)

// bootstrap creates the fixed tables; monthly shards are created on
// demand by the writer
func bootstrap(ctx context.Context, st *store.Store) error {
	if err := tables.EnsureTemplates(ctx, st.PG); err != nil {
		return err
	}
	if err := sitesrepo.NewPG().Bind(st.PG).EnsureSchema(ctx); err != nil {
		return err
	}
	return aggrepo.NewPG().Bind(st.PG).EnsureSchema(ctx)
}

func main() {
	// service-scoped config for HTTP etc (CORE_API_*)
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")      // pgCfg lives under SERVICE_PGSQL_*
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_") // chCfg lives under SERVICE_CLICKHOUSE_*
	// bring up logging early
	l := logger.Get()

	// open the platform store (postgres + optional CH mirror)
	st, err := store.Open(
		context.Background(),
		store.Config{
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
				ClientTag:  "api",
			},
		},
		store.WithLogger(*logger.Get()),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	if err := bootstrap(context.Background(), st); err != nil {
		l.Panic().Err(err).Msg("schema bootstrap failed")
	}

	// http server (reads CORE_API_PORT / CORE_API_ADDR)
	srv := phttp.NewServer(apiCfg)

	// mount our API
	api.Mount(
		srv.Router(),
		api.Options{
			Config:         root,
			Store:          st,
			Logger:         l,
			EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
			EnableProfiler: apiCfg.MayBool("PROFILER", true),
		},
	)

	// run
	if err := srv.Run(context.Background()); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
