package promptcache

import (
	"context"
	"time"
)

// lockToken is the placeholder value stored under lock keys; only presence
// matters.
var lockToken = []byte("1")

// DistributedLock is a mutual-exclusion primitive built on the store's
// atomic write-if-absent. The TTL is a safety net: if the holder crashes
// without releasing, the lock auto-expires instead of deadlocking every
// other process.
type DistributedLock struct {
	store  Store
	logger Logger
}

// NewDistributedLock creates a lock manager over the given store.
func NewDistributedLock(store Store, logger Logger) *DistributedLock {
	return &DistributedLock{store: store, logger: logger.Named("lock")}
}

// Acquire attempts to take the lock. Returns true iff this call created the
// lock key. A store failure is propagated, never treated as acquired: the
// caller decides whether degraded-mode fetching is acceptable.
func (l *DistributedLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.store.SetIfAbsent(ctx, key, lockToken, ttl)
	if err != nil {
		l.logger.Warn("lock acquire failed",
			String("key", key),
			Error(err))
		return false, err
	}
	return ok, nil
}

// Release deletes the lock key unconditionally. Callers defer it so release
// runs on every exit path of the critical section.
func (l *DistributedLock) Release(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, key); err != nil {
		// The TTL will still reap the lock; surface the error for the
		// caller to observe.
		l.logger.Warn("lock release failed",
			String("key", key),
			Error(err))
		return err
	}
	return nil
}
