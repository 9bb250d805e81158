// Package writer owns the archive creation state machine: id allocation
// under the shard lock, record insertion with zero suppression, and
// finalization that flips the done flag and cleans superseded rows
package writer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"statskeep/internal/core/datatable"
	"statskeep/internal/core/period"
	"statskeep/internal/core/segment"
	"statskeep/internal/modkit/repokit"
	perr "statskeep/internal/platform/errors"
	"statskeep/internal/platform/logger"
	"statskeep/internal/services/archive/domain"
	"statskeep/internal/services/archive/repo"
	"statskeep/internal/services/archive/tables"
)

// allocation lock retry bounds; the lock is held only for the max+1 read
// so contention clears quickly
const (
	allocRetries  = 30
	allocInterval = 100 * time.Millisecond
)

// procLockTTL bounds how long a crashed archiver can keep a cell's
// processing lease; a live one finishes or aborts well inside it
const procLockTTL = time.Hour

// Writer drives one archive creation. Not safe for concurrent use; each
// archiving attempt constructs its own
type Writer struct {
	repo   repo.Repo
	db     repokit.TxRunner
	binder repokit.Binder[repo.Repo]
	log    *logger.Logger
	salt   string
	sleep  func(time.Duration) // test seam

	params domain.Params
	month  time.Time
	flags  []string

	id       int64
	owner    string
	procName string
	procHeld bool

	// buffered records, flushed at finalize
	numNames []string
	numVals  []float64
	blobName []string
	blobVals [][]byte
}

// New builds a writer for one (site, period, segment) cell covering the
// given plugins. One done flag is written per covered plugin, so a
// partial archive never satisfies reads for plugins it did not compute.
// An empty plugin set (and empty Params.Plugin) produces the all-plugins
// archive with the bare flag
func New(
	binder repokit.Binder[repo.Repo],
	db repokit.TxRunner,
	log *logger.Logger,
	p domain.Params,
	plugins []string,
	salt string,
) *Writer {
	hash := ""
	if p.Segment != nil {
		hash = p.Segment.Hash()
	}
	if p.Plugin != "" {
		plugins = append([]string{p.Plugin}, plugins...)
	}
	var flags []string
	seen := map[string]bool{}
	for _, pl := range plugins {
		if pl == "" || seen[pl] {
			continue
		}
		seen[pl] = true
		flags = append(flags, domain.DoneFlag(hash, pl))
	}
	if len(flags) == 0 {
		flags = []string{domain.DoneFlag(hash, "")}
	}
	return &Writer{
		repo:   binder.Bind(db),
		db:     db,
		binder: binder,
		log:    log,
		salt:   salt,
		sleep:  time.Sleep,
		params: p,
		month:  tables.Month(p.Period.Start()),
		flags:  flags,
		owner:  uuid.NewString(),
	}
}

// ArchiveID returns the allocated id, 0 before Init
func (w *Writer) ArchiveID() int64 { return w.id }

// DoneFlags returns the flag names this writer finalizes
func (w *Writer) DoneFlags() []string { return w.flags }

// Init allocates the archive id and marks it ERROR until finalized
//
// The processing lock is advisory: an unavailable lease is returned as an
// observable result and archiving proceeds, trading duplicate work for
// availability. The allocation lock is mandatory; without it max+1 races
func (w *Writer) Init(ctx context.Context) (LockResult, error) {
	if w.id != 0 {
		return LockAcquired, perr.Newf(perr.ErrorCodeConflict, "archive writer already initialized")
	}

	proc := LockUnavailable
	w.procName = processingLockName(w.params, w.salt)
	got, err := w.repo.AcquireLock(ctx, w.procName, w.owner, procLockTTL)
	if err != nil {
		return LockUnavailable, err
	}
	if got {
		proc = LockAcquired
		w.procHeld = true
	} else {
		w.log.Warn().
			Int64("site_id", w.params.SiteID).
			Str("period", w.params.Period.RangeString()).
			Msg("processing lock unavailable, archiving anyway")
	}

	if err := tables.EnsureShardPair(ctx, w.db, w.month); err != nil {
		w.releaseProc(ctx)
		return proc, err
	}

	id, err := w.allocateID(ctx)
	if err != nil {
		w.releaseProc(ctx)
		return proc, err
	}
	w.id = id

	// status stays ERROR until finalize; a crash mid-write leaves the
	// archive invisible to readers
	for _, f := range w.flags {
		if err := w.repo.UpsertDoneFlag(ctx, w.month, w.id, w.params, f, domain.DoneError); err != nil {
			w.releaseProc(ctx)
			return proc, err
		}
	}
	return proc, nil
}

// allocateID runs the lock-then-max+1 sequence in one short transaction
// so the xact lock and the insert share a connection, retrying with
// bounded backoff while another writer holds the shard lock
func (w *Writer) allocateID(ctx context.Context) (int64, error) {
	key := Key(allocationLockName(w.params))
	sentinel := "locked_" + uuid.NewString()

	for i := 0; i < allocRetries; i++ {
		var id int64
		busy := false
		err := repokit.WithTx(ctx, w.db, func(q repokit.Queryer) error {
			r := w.binder.Bind(q)
			got, err := r.TryXactLock(ctx, key)
			if err != nil {
				return err
			}
			if !got {
				busy = true
				return nil
			}
			id, err = r.AllocateArchiveID(ctx, w.month, w.params, sentinel)
			return err
		})
		if err != nil {
			return 0, err
		}
		if !busy {
			return id, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		w.sleep(allocInterval)
	}
	return 0, perr.Unavailablef("allocation lock busy after %d attempts", allocRetries)
}

// InsertNumeric buffers one metric value. Zero values are dropped:
// absence means zero on read, and most cells are zero
func (w *Writer) InsertNumeric(_ context.Context, name string, value float64) error {
	if w.id == 0 {
		return perr.Newf(perr.ErrorCodeConflict, "writer not initialized")
	}
	if value == 0 {
		return nil
	}
	w.numNames = append(w.numNames, name)
	w.numVals = append(w.numVals, value)
	return nil
}

// InsertBlob buffers compressed subtable blobs: id 0 keeps the bare
// name, others get the _<id> suffix. Empty blobs are dropped
func (w *Writer) InsertBlob(_ context.Context, name string, byID map[int64][]byte) error {
	if w.id == 0 {
		return perr.Newf(perr.ErrorCodeConflict, "writer not initialized")
	}
	for id, blob := range byID {
		if len(blob) == 0 {
			continue
		}
		w.blobName = append(w.blobName, datatable.BlobName(name, id))
		w.blobVals = append(w.blobVals, blob)
	}
	return nil
}

// Finalize flushes buffered records, removes superseded archives and
// flips the flag to OK (or OK_TEMPORARY for still-open periods)
func (w *Writer) Finalize(ctx context.Context, temporary bool) error {
	if w.id == 0 {
		return perr.Newf(perr.ErrorCodeConflict, "writer not initialized")
	}
	defer w.releaseProc(ctx)

	if err := w.repo.InsertNumericRecords(ctx, w.month, w.id, w.params, w.numNames, w.numVals); err != nil {
		return err
	}
	if err := w.repo.InsertBlobRecords(ctx, w.month, w.id, w.params, w.blobName, w.blobVals); err != nil {
		return err
	}
	if _, err := w.repo.DeleteSupersededArchives(ctx, w.month, w.params, w.flags, w.id); err != nil {
		return err
	}
	if err := w.repo.DeleteSentinel(ctx, w.month, w.id); err != nil {
		return err
	}

	final := domain.DoneOK
	if temporary {
		final = domain.DoneOKTemporary
	}
	for _, f := range w.flags {
		if err := w.repo.UpsertDoneFlag(ctx, w.month, w.id, w.params, f, final); err != nil {
			return err
		}
	}
	return nil
}

// Abort releases the processing lock and leaves the flag as ERROR; the
// half-written archive is ignored by readers and purged later
func (w *Writer) Abort(ctx context.Context) {
	w.releaseProc(ctx)
}

func (w *Writer) releaseProc(ctx context.Context) {
	if !w.procHeld {
		return
	}
	w.procHeld = false
	held, err := w.repo.ReleaseLock(ctx, w.procName, w.owner)
	if err != nil {
		w.log.Error().Err(err).Msg("processing lock release failed")
		return
	}
	if !held {
		w.log.Warn().Str("lock", w.procName).Msg("processing lease expired before release")
	}
}

// SiteID implements domain.ArchiveContext
func (w *Writer) SiteID() int64 { return w.params.SiteID }

// Period implements domain.ArchiveContext
func (w *Writer) Period() period.Period { return w.params.Period }

// Segment implements domain.ArchiveContext
func (w *Writer) Segment() *segment.Segment { return w.params.Segment }
