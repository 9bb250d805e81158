// Package repo provides postgres access for the site registry
package repo

import (
	"context"
	stdsql "database/sql"
	"errors"

	"statskeep/internal/modkit/repokit"
	perr "statskeep/internal/platform/errors"
	"statskeep/internal/services/sites/domain"
)

// Repo is the minimal persistence surface for sites
type Repo interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, in domain.CreateInput) (domain.Site, error)
	Get(ctx context.Context, id int64) (domain.Site, error)
	List(ctx context.Context, limit, offset int) ([]domain.Site, error)
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
CREATE TABLE IF NOT EXISTS site (
	idsite     BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name       TEXT NOT NULL,
	main_url   TEXT NOT NULL,
	timezone   TEXT NOT NULL DEFAULT 'UTC',
	ts_created TIMESTAMPTZ NOT NULL DEFAULT now()
)
`
	if _, err := r.q.Exec(ctx, sql); err != nil {
		return perr.FromPostgresf(err, "sites ensure schema")
	}
	return nil
}

func (r *queries) Insert(ctx context.Context, in domain.CreateInput) (domain.Site, error) {
	const sql = `
INSERT INTO site (name, main_url, timezone)
VALUES ($1, $2, $3)
RETURNING idsite, name, main_url, timezone, ts_created
`
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	var s domain.Site
	row := r.q.QueryRow(ctx, sql, in.Name, in.MainURL, tz)
	if err := row.Scan(&s.ID, &s.Name, &s.MainURL, &s.Timezone, &s.CreatedAt); err != nil {
		return domain.Site{}, perr.FromPostgresf(err, "sites insert")
	}
	return s, nil
}

func (r *queries) Get(ctx context.Context, id int64) (domain.Site, error) {
	const sql = `
SELECT idsite, name, main_url, timezone, ts_created
FROM site
WHERE idsite = $1
`
	var s domain.Site
	row := r.q.QueryRow(ctx, sql, id)
	if err := row.Scan(&s.ID, &s.Name, &s.MainURL, &s.Timezone, &s.CreatedAt); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return domain.Site{}, perr.NotFoundf("site %d", id)
		}
		return domain.Site{}, perr.FromPostgresf(err, "sites get")
	}
	return s, nil
}

func (r *queries) List(ctx context.Context, limit, offset int) ([]domain.Site, error) {
	const sql = `
SELECT idsite, name, main_url, timezone, ts_created
FROM site
ORDER BY idsite
LIMIT $1 OFFSET $2
`
	rows, err := r.q.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, perr.FromPostgresf(err, "sites list")
	}
	defer rows.Close()
	var out []domain.Site
	for rows.Next() {
		var s domain.Site
		if err := rows.Scan(&s.ID, &s.Name, &s.MainURL, &s.Timezone, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
