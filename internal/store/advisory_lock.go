package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TryAdvisoryLock attempts a session-level pg_try_advisory_lock for
// shardKey. Session-level (not transaction-level) because the dispatcher
// holds the lock across the claim-scheduled, claim-ready, and
// stale-heartbeat-sweep steps of one tick, which span several independent
// queries rather than one transaction.
//
// On success it returns a release func that unlocks and returns the
// connection to the pool; the caller must call it exactly once, typically
// in a defer, whether or not acquired is true (release is a no-op when
// acquired is false).
func (s *Store) TryAdvisoryLock(ctx context.Context, shardKey int64) (release func(), acquired bool, err error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return func() {}, false, fmt.Errorf("failed to acquire connection for advisory lock: %w", err)
	}

	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, shardKey).Scan(&acquired); err != nil {
		conn.Release()
		return func() {}, false, fmt.Errorf("failed to try advisory lock %d: %w", shardKey, err)
	}
	if !acquired {
		conn.Release()
		return func() {}, false, nil
	}

	return func() { unlockAndRelease(conn, shardKey) }, true, nil
}

func unlockAndRelease(conn *pgxpool.Conn, shardKey int64) {
	_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, shardKey)
	conn.Release()
}
