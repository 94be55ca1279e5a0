package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"
)

func lockKeyHash(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// AdvisoryLocker implements holdsweep.Locker on top of a dedicated
// Postgres session-level advisory lock, the same primitive the
// migrator uses for its own mutual exclusion.
type AdvisoryLocker struct {
	db *sql.DB
}

// NewAdvisoryLocker returns a Locker backed by db.
func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// TryLock attempts a non-blocking pg_try_advisory_lock on a dedicated
// connection held open for the caller's run; ttl is advisory only (the
// session lock itself is released by the returned func, or reclaimed by
// Postgres if the connection dies).
func (l *AdvisoryLocker) TryLock(name string, ttl time.Duration) (bool, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("acquire advisory lock connection: %w", err)
	}

	key := int64(lockKeyHash(name))
	var held bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&held); err != nil {
		_ = conn.Close()
		return false, nil, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !held {
		_ = conn.Close()
		return false, nil, nil
	}

	release := func() {
		unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer unlockCancel()
		_, _ = conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", key)
		_ = conn.Close()
	}
	return true, release, nil
}
