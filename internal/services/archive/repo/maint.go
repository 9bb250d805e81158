package repo

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"time"

	perr "statskeep/internal/platform/errors"
	"statskeep/internal/services/archive/domain"
	"statskeep/internal/services/archive/tables"
)

// ListShardMonths discovers which monthly shards exist, oldest first
// Invalidation has to visit every shard: a year archive for 2024 lives in
// the january shard no matter which date invalidated it
func (r *queries) ListShardMonths(ctx context.Context) ([]time.Time, error) {
	const sql = `
SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema()
AND table_name LIKE 'archive\_numeric\_%'
AND table_name <> 'archive_numeric_template'
ORDER BY table_name
`
	rows, err := r.q.Query(ctx, sql)
	if err != nil {
		return nil, perr.FromPostgres(err, "list shard months")
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, perr.FromPostgres(err, "scan shard name")
		}
		var y, m int
		if _, err := fmt.Sscanf(name, "archive_numeric_%04d_%02d", &y, &m); err != nil {
			continue
		}
		out = append(out, time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC))
	}
	return out, rows.Err()
}

// InvalidateArchives flips done flags to INVALIDATED for every archive in
// the shard whose period contains any of the given dates, so the next
// read recomputes. Returns the number of flag rows touched
func (r *queries) InvalidateArchives(
	ctx context.Context,
	month time.Time,
	siteIDs []int64,
	dates []time.Time,
) (int64, error) {
	shard := tables.Name(tables.Numeric, month)
	sql := fmt.Sprintf(`
UPDATE %s SET value = %d
WHERE idsite = ANY($1)
AND name LIKE 'done%%'
AND value IN (%d, %d)
AND EXISTS (SELECT 1 FROM unnest($2::date[]) AS d(d) WHERE d.d BETWEEN date1 AND date2)
`, shard, int(domain.DoneInvalidated), int(domain.DoneOK), int(domain.DoneOKTemporary))

	tag, err := r.q.Exec(ctx, sql, siteIDs, dates)
	if err != nil {
		if perr.IsSQLState(err, undefinedTable) {
			return 0, nil
		}
		return 0, perr.FromPostgres(err, "invalidate archives")
	}
	return tag.RowsAffected(), nil
}

// PurgeErrored deletes rows of archives whose latest flag is ERROR or
// INVALIDATED, plus stale allocation sentinels older than sentinelAge
// Returns total rows removed across both shards of the month
func (r *queries) PurgeErrored(ctx context.Context, month time.Time, sentinelAge time.Duration) (int64, error) {
	numeric := tables.Name(tables.Numeric, month)
	blob := tables.Name(tables.Blob, month)

	pick := fmt.Sprintf(`
SELECT DISTINCT idarchive FROM %s
WHERE (name LIKE 'done%%' AND value IN (%d, %d))
OR (name LIKE 'locked\_%%' AND ts_archived < now() - $1::interval)
`, numeric, int(domain.DoneError), int(domain.DoneInvalidated))

	age := fmt.Sprintf("%d seconds", int(sentinelAge.Seconds()))

	var deleted int64
	tag, err := r.q.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE idarchive IN (%s)", numeric, pick), age)
	if err != nil {
		if perr.IsSQLState(err, undefinedTable) {
			return 0, nil
		}
		return 0, perr.FromPostgres(err, "purge errored numeric rows")
	}
	deleted += tag.RowsAffected()

	tag, err = r.q.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE idarchive IN (%s)", blob, pick), age)
	if err != nil {
		if perr.IsSQLState(err, undefinedTable) {
			return deleted, nil
		}
		return deleted, perr.FromPostgres(err, "purge errored blob rows")
	}
	return deleted + tag.RowsAffected(), nil
}

// option store; holds the instance salt that keys lock name hashing

const ddlOption = `
CREATE TABLE IF NOT EXISTS option (
	option_name  TEXT PRIMARY KEY,
	option_value TEXT NOT NULL
)`

// EnsureOptionTable creates the option table
func (r *queries) EnsureOptionTable(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, ddlOption); err != nil {
		return perr.FromPostgres(err, "ensure option table")
	}
	return nil
}

// GetOption reads a single option value
func (r *queries) GetOption(ctx context.Context, name string) (string, bool, error) {
	var v string
	err := r.q.QueryRow(ctx, "SELECT option_value FROM option WHERE option_name = $1", name).Scan(&v)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, perr.FromPostgres(err, "get option")
	}
	return v, true, nil
}

// SetOption upserts a single option value
func (r *queries) SetOption(ctx context.Context, name, value string) error {
	const sql = `
INSERT INTO option (option_name, option_value) VALUES ($1, $2)
ON CONFLICT (option_name) DO UPDATE SET option_value = EXCLUDED.option_value
`
	if _, err := r.q.Exec(ctx, sql, name, value); err != nil {
		return perr.FromPostgres(err, "set option")
	}
	return nil
}
