// Package repo provides postgres access for the archive subsystem
package repo

import (
	"context"
	"time"

	"statskeep/internal/core/period"
	"statskeep/internal/modkit/repokit"
	"statskeep/internal/services/archive/domain"
)

// Repo is the persistence surface for the selector, writer and
// maintenance operations. All shard-scoped methods take the shard month;
// the repo never guesses which physical table a row lives in
type Repo interface {
	// selector
	GetArchiveIDAndVisits(ctx context.Context, p domain.Params, doneFlags []string, minTS *time.Time) (*domain.FoundArchive, error)
	GetArchiveIDs(
		ctx context.Context,
		month time.Time,
		siteIDs []int64,
		periods []period.Period,
		doneFlags []string,
	) (map[string]map[string][]int64, error)
	GetArchiveData(
		ctx context.Context,
		month time.Time,
		ids []int64,
		names []string,
		kind domain.RecordKind,
		subtable int64,
	) ([]domain.ArchiveRow, error)

	// writer
	AllocateArchiveID(ctx context.Context, month time.Time, p domain.Params, sentinel string) (int64, error)
	InsertNumericRecords(ctx context.Context, month time.Time, archiveID int64, p domain.Params, names []string, values []float64) error
	InsertBlobRecords(ctx context.Context, month time.Time, archiveID int64, p domain.Params, names []string, blobs [][]byte) error
	DeleteSupersededArchives(ctx context.Context, month time.Time, p domain.Params, doneFlags []string, keepID int64) (int64, error)
	DeleteSentinel(ctx context.Context, month time.Time, archiveID int64) error
	UpsertDoneFlag(ctx context.Context, month time.Time, archiveID int64, p domain.Params, flag string, value domain.DoneValue) error

	// locks. TryXactLock is transaction scoped and only meaningful inside
	// a Tx: it auto-releases at commit, so lock and protected statements
	// are guaranteed to share one session even behind a pool. Processing
	// locks are leases in the archive_lock table, safe across pooled
	// connections and self-expiring when a holder crashes
	TryXactLock(ctx context.Context, key int64) (bool, error)
	EnsureLockTable(ctx context.Context) error
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)

	// maintenance
	ListShardMonths(ctx context.Context) ([]time.Time, error)
	InvalidateArchives(ctx context.Context, month time.Time, siteIDs []int64, dates []time.Time) (int64, error)
	PurgeErrored(ctx context.Context, month time.Time, sentinelAge time.Duration) (int64, error)

	// option store
	EnsureOptionTable(ctx context.Context) error
	GetOption(ctx context.Context, name string) (string, bool, error)
	SetOption(ctx context.Context, name, value string) error
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
