package repo

import (
	"context"
	"fmt"
	"time"

	perr "statskeep/internal/platform/errors"
	"statskeep/internal/services/archive/domain"
	"statskeep/internal/services/archive/tables"
)

// AllocateArchiveID inserts a sentinel row carrying MAX(idarchive)+1 for
// the shard and returns the new id. The caller must run this inside a
// transaction holding the shard allocation xact lock; without it two
// writers can read the same max
func (r *queries) AllocateArchiveID(
	ctx context.Context,
	month time.Time,
	p domain.Params,
	sentinel string,
) (int64, error) {
	shard := tables.Name(tables.Numeric, month)
	sql := fmt.Sprintf(`
INSERT INTO %s (idarchive, name, idsite, date1, date2, period, ts_archived, value)
SELECT COALESCE(MAX(idarchive), 0) + 1, $1, $2, $3, $4, $5, now(), 0
FROM %s
RETURNING idarchive
`, shard, shard)

	var id int64
	err := r.q.QueryRow(ctx, sql, sentinel, p.SiteID, p.Period.Start(), p.Period.End(), p.Period.ID()).Scan(&id)
	if err != nil {
		return 0, perr.FromPostgres(err, "allocate archive id")
	}
	return id, nil
}

// InsertNumericRecords writes one row per (name, value) pair for an
// archive. Replays are tolerated: a conflicting (idarchive, name) row is
// left as is
func (r *queries) InsertNumericRecords(
	ctx context.Context,
	month time.Time,
	archiveID int64,
	p domain.Params,
	names []string,
	values []float64,
) error {
	if len(names) == 0 {
		return nil
	}
	if len(names) != len(values) {
		return perr.InvalidArgf("numeric batch: %d names, %d values", len(names), len(values))
	}
	shard := tables.Name(tables.Numeric, month)
	sql := fmt.Sprintf(`
INSERT INTO %s (idarchive, name, idsite, date1, date2, period, ts_archived, value)
SELECT $1, u.name, $2, $3, $4, $5, now(), u.value
FROM unnest($6::text[], $7::float8[]) AS u(name, value)
ON CONFLICT (idarchive, name) DO NOTHING
`, shard)

	_, err := r.q.Exec(ctx, sql,
		archiveID, p.SiteID, p.Period.Start(), p.Period.End(), p.Period.ID(), names, values)
	if err != nil {
		return perr.FromPostgres(err, "insert numeric records")
	}
	return nil
}

// InsertBlobRecords writes compressed blob rows; same replay tolerance
// as the numeric side
func (r *queries) InsertBlobRecords(
	ctx context.Context,
	month time.Time,
	archiveID int64,
	p domain.Params,
	names []string,
	blobs [][]byte,
) error {
	if len(names) == 0 {
		return nil
	}
	if len(names) != len(blobs) {
		return perr.InvalidArgf("blob batch: %d names, %d blobs", len(names), len(blobs))
	}
	shard := tables.Name(tables.Blob, month)
	sql := fmt.Sprintf(`
INSERT INTO %s (idarchive, name, idsite, date1, date2, period, ts_archived, value)
SELECT $1, u.name, $2, $3, $4, $5, now(), u.value
FROM unnest($6::text[], $7::bytea[]) AS u(name, value)
ON CONFLICT (idarchive, name) DO NOTHING
`, shard)

	_, err := r.q.Exec(ctx, sql,
		archiveID, p.SiteID, p.Period.Start(), p.Period.End(), p.Period.ID(), names, blobs)
	if err != nil {
		return perr.FromPostgres(err, "insert blob records")
	}
	return nil
}

// DeleteSupersededArchives removes rows from prior attempts at the same
// cell: archives that carry any of the same done flags, and allocation
// sentinels. The archive being finalized (keepID) survives. Blob rows
// for a month whose blob shard was never created are simply absent
func (r *queries) DeleteSupersededArchives(
	ctx context.Context,
	month time.Time,
	p domain.Params,
	doneFlags []string,
	keepID int64,
) (int64, error) {
	numeric := tables.Name(tables.Numeric, month)
	blob := tables.Name(tables.Blob, month)

	pick := fmt.Sprintf(`
SELECT DISTINCT idarchive FROM %s
WHERE idsite = $1 AND date1 = $2 AND date2 = $3 AND period = $4
AND idarchive <> $5
AND (name = ANY($6) OR name LIKE 'locked\_%%')
`, numeric)

	args := []any{p.SiteID, p.Period.Start(), p.Period.End(), p.Period.ID(), keepID, doneFlags}

	var deleted int64
	tag, err := r.q.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE idarchive IN (%s)", numeric, pick), args...)
	if err != nil {
		return 0, perr.FromPostgres(err, "delete superseded numeric rows")
	}
	deleted += tag.RowsAffected()

	tag, err = r.q.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE idarchive IN (%s)", blob, pick), args...)
	if err != nil {
		if perr.IsSQLState(err, undefinedTable) {
			return deleted, nil
		}
		return deleted, perr.FromPostgres(err, "delete superseded blob rows")
	}
	return deleted + tag.RowsAffected(), nil
}

// UpsertDoneFlag writes or overwrites an archive's completion flag;
// unlike record inserts this must clobber the ERROR flag laid down at
// allocation time
func (r *queries) UpsertDoneFlag(
	ctx context.Context,
	month time.Time,
	archiveID int64,
	p domain.Params,
	flag string,
	value domain.DoneValue,
) error {
	shard := tables.Name(tables.Numeric, month)
	sql := fmt.Sprintf(`
INSERT INTO %s (idarchive, name, idsite, date1, date2, period, ts_archived, value)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)
ON CONFLICT (idarchive, name) DO UPDATE SET value = EXCLUDED.value, ts_archived = now()
`, shard)

	_, err := r.q.Exec(ctx, sql,
		archiveID, flag, p.SiteID, p.Period.Start(), p.Period.End(), p.Period.ID(), float64(value))
	if err != nil {
		return perr.FromPostgres(err, "upsert done flag")
	}
	return nil
}

// DeleteSentinel removes the allocation sentinel row of a finalized
// archive
func (r *queries) DeleteSentinel(ctx context.Context, month time.Time, archiveID int64) error {
	shard := tables.Name(tables.Numeric, month)
	sql := fmt.Sprintf(`DELETE FROM %s WHERE idarchive = $1 AND name LIKE 'locked\_%%'`, shard)
	if _, err := r.q.Exec(ctx, sql, archiveID); err != nil {
		return perr.FromPostgres(err, "delete sentinel")
	}
	return nil
}

// TryXactLock attempts a transaction-scoped advisory lock without
// blocking. Session-scoped pg_advisory_lock would be wrong here: through
// a pool the acquire and the protected statement can land on different
// connections. Inside a Tx both run on the tx connection and the lock
// releases itself at commit or rollback
func (r *queries) TryXactLock(ctx context.Context, key int64) (bool, error) {
	var got bool
	if err := r.q.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", key).Scan(&got); err != nil {
		return false, perr.FromPostgres(err, "try xact lock")
	}
	return got, nil
}

const ddlLock = `
CREATE TABLE IF NOT EXISTS archive_lock (
	lock_key   TEXT PRIMARY KEY,
	lock_owner TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// EnsureLockTable creates the processing-lock lease table
func (r *queries) EnsureLockTable(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, ddlLock); err != nil {
		return perr.FromPostgres(err, "ensure lock table")
	}
	return nil
}

// AcquireLock takes a named lease for owner, stealing it only when the
// current holder's lease has expired. Returns false when someone else
// still holds it
func (r *queries) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	const sql = `
INSERT INTO archive_lock (lock_key, lock_owner, expires_at)
VALUES ($1, $2, now() + $3::interval)
ON CONFLICT (lock_key) DO UPDATE
SET lock_owner = EXCLUDED.lock_owner, expires_at = EXCLUDED.expires_at
WHERE archive_lock.expires_at < now()
`
	iv := fmt.Sprintf("%d milliseconds", ttl.Milliseconds())
	tag, err := r.q.Exec(ctx, sql, key, owner, iv)
	if err != nil {
		return false, perr.FromPostgres(err, "acquire lock lease")
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseLock drops the lease if owner still holds it; false means the
// lease expired and was taken over in the meantime
func (r *queries) ReleaseLock(ctx context.Context, key, owner string) (bool, error) {
	tag, err := r.q.Exec(ctx, "DELETE FROM archive_lock WHERE lock_key = $1 AND lock_owner = $2", key, owner)
	if err != nil {
		return false, perr.FromPostgres(err, "release lock lease")
	}
	return tag.RowsAffected() == 1, nil
}
