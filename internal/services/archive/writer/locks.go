package writer

import (
	"crypto/md5" // #nosec G401 lock key derivation, not authentication
	"encoding/binary"
	"fmt"

	"statskeep/internal/services/archive/domain"
	"statskeep/internal/services/archive/tables"
)

// LockResult is the outcome of a best-effort lock attempt
type LockResult int

// Lock outcomes; Unavailable is an observable condition, not an error
const (
	LockAcquired LockResult = iota
	LockUnavailable
)

// String renders the lock outcome for logs
func (l LockResult) String() string {
	if l == LockAcquired {
		return "acquired"
	}
	return "unavailable"
}

// Key folds a lock name into the signed 64 bit key space postgres
// advisory locks use
func Key(name string) int64 {
	sum := md5.Sum([]byte(name)) // #nosec G401
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// allocationLockName serializes max+1 id allocation per numeric shard
func allocationLockName(p domain.Params) string {
	return "allocarchive." + tables.NameForPeriod(tables.Numeric, p.Period)
}

// processingLockName gates redundant computation of one
// (site, period, segment) cell. The instance salt keeps keys from
// colliding across installations sharing a database server
func processingLockName(p domain.Params, salt string) string {
	hash := ""
	if p.Segment != nil {
		hash = p.Segment.Hash()
	}
	return fmt.Sprintf("archive.%d.%s.%d.%s.%s",
		p.SiteID, hash, p.Period.ID(), p.Period.RangeString(), salt)
}
