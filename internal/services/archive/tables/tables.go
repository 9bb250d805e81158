// Package tables routes archive rows to their monthly shard tables and
// owns the shard schema
//
// Every calendar month gets one numeric and one blob table, named
// archive_numeric_YYYY_MM / archive_blob_YYYY_MM and created on demand as
// schema copies of a template pair. Creation is idempotent; reads against
// a shard that was never created are the caller's concern (missing shard
// means no data for that month, not an error)
package tables

import (
	"context"
	"fmt"
	"time"

	"statskeep/internal/core/period"
	perr "statskeep/internal/platform/errors"
	"statskeep/internal/platform/store"
)

// Kind selects numeric or blob shards
type Kind int

// Shard kinds; the mapping kind to DDL is static, resolved here and
// nowhere else
const (
	Numeric Kind = iota
	Blob
)

// template table names
const (
	numericTemplate = "archive_numeric_template"
	blobTemplate    = "archive_blob_template"
)

// Name returns the shard table name for the month containing t
func Name(k Kind, t time.Time) string {
	prefix := "archive_numeric"
	if k == Blob {
		prefix = "archive_blob"
	}
	return fmt.Sprintf("%s_%04d_%02d", prefix, t.Year(), int(t.Month()))
}

// NameForPeriod shards by the period start date, so a range spanning a
// month boundary lives in its start month
func NameForPeriod(k Kind, p period.Period) string { return Name(k, p.Start()) }

// Month truncates t to the first day of its month in UTC
func Month(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsOf partitions periods by their shard month, preserving order of
// first appearance
func MonthsOf(periods []period.Period) []time.Time {
	var out []time.Time
	seen := map[time.Time]bool{}
	for _, p := range periods {
		m := Month(p.Start())
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

const ddlNumericTemplate = `
CREATE TABLE IF NOT EXISTS ` + numericTemplate + ` (
	idarchive   BIGINT NOT NULL,
	name        TEXT NOT NULL,
	idsite      BIGINT NOT NULL,
	date1       DATE NOT NULL,
	date2       DATE NOT NULL,
	period      SMALLINT NOT NULL,
	ts_archived TIMESTAMPTZ NOT NULL DEFAULT now(),
	value       DOUBLE PRECISION,
	PRIMARY KEY (idarchive, name)
)`

const ddlBlobTemplate = `
CREATE TABLE IF NOT EXISTS ` + blobTemplate + ` (
	idarchive   BIGINT NOT NULL,
	name        TEXT NOT NULL,
	idsite      BIGINT NOT NULL,
	date1       DATE NOT NULL,
	date2       DATE NOT NULL,
	period      SMALLINT NOT NULL,
	ts_archived TIMESTAMPTZ NOT NULL DEFAULT now(),
	value       BYTEA,
	PRIMARY KEY (idarchive, name)
)`

const ddlNumericTemplateIndex = `
CREATE INDEX IF NOT EXISTS archive_numeric_template_site_period
ON ` + numericTemplate + ` (idsite, date1, date2, period, name)`

const ddlBlobTemplateIndex = `
CREATE INDEX IF NOT EXISTS archive_blob_template_site_period
ON ` + blobTemplate + ` (idsite, date1, date2, period, name)`

// EnsureTemplates creates the template pair; run at startup before any
// shard can be materialized
func EnsureTemplates(ctx context.Context, q store.RowQuerier) error {
	for _, ddl := range []string{ddlNumericTemplate, ddlNumericTemplateIndex, ddlBlobTemplate, ddlBlobTemplateIndex} {
		if _, err := q.Exec(ctx, ddl); err != nil {
			return perr.FromPostgres(err, "ensure archive templates")
		}
	}
	return nil
}

// EnsureShardPair creates the numeric and blob shards for the month of t
// as schema copies of the templates. Creating an existing shard is a
// no-op; genuine DDL failures propagate, archiving cannot proceed
// without storage
func EnsureShardPair(ctx context.Context, q store.RowQuerier, t time.Time) error {
	pairs := []struct{ shard, template string }{
		{Name(Numeric, t), numericTemplate},
		{Name(Blob, t), blobTemplate},
	}
	for _, p := range pairs {
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING ALL)", p.shard, p.template)
		if _, err := q.Exec(ctx, ddl); err != nil {
			return perr.FromPostgresf(err, "ensure shard %s", p.shard)
		}
	}
	return nil
}
