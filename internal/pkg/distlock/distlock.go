// Package distlock provides the per-job single-flight guard. Every batch
// trigger acquires its job lock before running, making the at-most-one
// concurrent invocation guarantee explicit instead of an operational
// convention.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is the interface for a distributed lock. A Lock instance is meant for
// a single acquire/release cycle from one goroutine.
type Lock interface {
	// Acquire tries to take the lock without blocking. Returns true on success.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if still owned.
	Release(ctx context.Context) error
}

// Factory builds job locks against the best available backend: Redis when a
// client is configured, PostgreSQL advisory locks otherwise.
type Factory struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
}

// NewFactory creates a lock factory. redisClient may be nil.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Factory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Factory{redis: redisClient, db: db, ttl: ttl}
}

// ForJob returns a lock scoped to the named batch job.
func (f *Factory) ForJob(name string) Lock {
	key := "ops:" + name
	if f.redis != nil {
		return NewRedisLock(f.redis, key, f.ttl)
	}
	return NewPGAdvisoryLock(f.db, key)
}

// PGAdvisoryLock backs a job lock with pg_try_advisory_lock. Session scoping
// means the lock drops automatically if the connection dies, which matches
// the crash-safety Redis gets from TTL expiry.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock derives a deterministic advisory lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries to take the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
