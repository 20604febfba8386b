package promptcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// lockWaitDelays is the bounded backoff schedule for callers that lost the
// population race: three cache re-reads over ~350ms total.
var lockWaitDelays = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
}

// fetchWithLock implements stampede-protected read-through. Fast path is a
// plain store read with no lock contact. On a miss, in-process callers
// collapse through singleflight and exactly one goroutine runs populate;
// across processes the distributed lock serializes population.
func (c *Cache) fetchWithLock(ctx context.Context, key string, fn FetchFunc) ([]byte, error) {
	data, err := c.store.Get(ctx, key)
	if err == nil {
		c.metrics.RecordHit(key, "fresh")
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		c.metrics.RecordError(key, err)
		return nil, err
	}

	c.logger.Debug("cache miss",
		String("key", key))
	c.metrics.RecordMiss(key)

	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		return c.populate(ctx, key, fn)
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

// populate runs the miss path: win the lock and fetch, or wait for the
// winner, or fetch unprotected as a last resort.
//
// Under normal conditions exactly one process calls fn per miss. If the
// lock holder crashes or stalls past the wait budget, waiters fetch
// directly; the possible duplicate fetch is an accepted, bounded
// degradation favoring availability.
func (c *Cache) populate(ctx context.Context, key string, fn FetchFunc) (interface{}, error) {
	lockKey := populateLockKey(key)

	acquired, err := c.locks.Acquire(ctx, lockKey, c.lockTimeout)
	if err != nil {
		// A store outage is never treated as "safe to proceed
		// unlocked"; the caller decides how to degrade.
		return nil, fmt.Errorf("acquire population lock: %w", err)
	}

	if acquired {
		// Release must run on every exit path, including fetch and
		// store failures, and must not be skipped because the request
		// context was cancelled.
		defer func() {
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = c.locks.Release(rctx, lockKey)
		}()

		data, ferr := c.runFetch(key, fn)
		if ferr != nil {
			return nil, ferr
		}
		if serr := c.store.Set(ctx, key, data, c.ttl); serr != nil {
			// The fetched value is still good; serve it and let the
			// next miss repopulate.
			c.logger.Warn("failed to store fetched value",
				String("key", key),
				Error(serr))
			c.metrics.RecordError(key, serr)
		}
		return data, nil
	}

	// Another process holds the lock: wait with bounded backoff,
	// re-reading the cache after each sleep.
	for _, delay := range lockWaitDelays {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		data, gerr := c.store.Get(ctx, key)
		if gerr == nil {
			c.metrics.RecordHit(key, "waited")
			return data, nil
		}
		if !errors.Is(gerr, ErrNotFound) {
			c.logger.Debug("store read failed while waiting for lock holder",
				String("key", key),
				Error(gerr))
		}
	}

	// Lock holder crashed, stalled, or is partitioned away. Fetch
	// directly without the lock.
	c.logger.Warn("lock wait exhausted, fetching without lock",
		String("key", key),
		Duration("waited", totalWait()))

	data, ferr := c.runFetch(key, fn)
	if ferr != nil {
		return nil, ferr
	}
	if serr := c.store.Set(ctx, key, data, c.ttl); serr != nil {
		c.logger.Warn("failed to store fetched value",
			String("key", key),
			Error(serr))
		c.metrics.RecordError(key, serr)
	}
	return data, nil
}

func totalWait() time.Duration {
	var total time.Duration
	for _, d := range lockWaitDelays {
		total += d
	}
	return total
}
