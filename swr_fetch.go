package promptcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// fetchWithSWR implements the stale-while-revalidate read path:
//
//	FRESH       -> return cached data immediately
//	REVALIDATE  -> return cached data, schedule a deduplicated refresh
//	STALE/MISS  -> fetch synchronously, store new SWR metadata
func (c *Cache) fetchWithSWR(ctx context.Context, key string, fn FetchFunc) ([]byte, error) {
	entry, err := c.loadEntry(ctx, key)
	if err != nil {
		return nil, err
	}

	switch state := entry.StateAt(time.Now().UnixMilli()); state {
	case StateFresh:
		c.metrics.RecordHit(key, "fresh")
		return bytes.Clone(entry.Data), nil

	case StateRevalidate:
		c.logger.Debug("serving stale value, scheduling refresh",
			String("key", key),
			Int64("fresh_until", entry.FreshUntil),
			Int64("stale_until", entry.StaleUntil))
		c.metrics.RecordHit(key, "revalidate")
		c.scheduleRefresh(key, fn)
		return bytes.Clone(entry.Data), nil

	default:
		c.logger.Debug("synchronous refetch",
			String("key", key),
			String("state", state.String()))
		c.metrics.RecordMiss(key)
		return c.refreshSync(ctx, key, fn)
	}
}

// loadEntry reads and decodes the SWR record for key. A missing key or a
// corrupt record both come back as a nil entry: corruption triggers a
// refetch, never a propagated parse error.
func (c *Cache) loadEntry(ctx context.Context, key string) (*Entry, error) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		c.metrics.RecordError(key, err)
		return nil, err
	}

	entry, derr := DecodeEntry(raw)
	if derr != nil {
		c.logger.Warn("corrupt cache entry, treating as miss",
			String("key", key),
			Error(derr))
		return nil, nil
	}
	return entry, nil
}

// refreshSync fetches and stores in the caller's goroutine, collapsing
// in-process concurrent misses through singleflight. Fetch errors propagate
// directly to the caller; there is no retry at this layer.
func (c *Cache) refreshSync(ctx context.Context, key string, fn FetchFunc) ([]byte, error) {
	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		data, ferr := c.runFetch(key, fn)
		if ferr != nil {
			return nil, ferr
		}
		c.storeEntry(ctx, key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

// storeEntry writes a new SWR record whose windows start now. The
// store-level TTL covers the full fresh+grace lifetime so entries vanish
// from the store once they can no longer be served.
func (c *Cache) storeEntry(ctx context.Context, key string, data []byte) {
	entry := NewEntry(key, data, c.ttl, c.staleGrace)
	enc, err := entry.Encode()
	if err != nil {
		c.logger.Error("failed to encode cache entry",
			String("key", key),
			Error(err))
		c.metrics.RecordError(key, err)
		return
	}
	if err := c.store.Set(ctx, key, enc, c.ttl+c.staleGrace); err != nil {
		c.logger.Warn("failed to persist cache entry",
			String("key", key),
			Error(err))
		c.metrics.RecordError(key, err)
	}
}

// scheduleRefresh tries to queue a background refresh for key. The per-key
// refresh lock deduplicates across goroutines and processes: if it cannot
// be acquired, another refresher is already at work and scheduling is a
// no-op. If the pool is saturated the task is dropped and the lock released
// so the next revalidating read can retry.
func (c *Cache) scheduleRefresh(key string, fn FetchFunc) {
	lockKey := refreshLockKey(key)

	// Scheduling is tied to the cache lifetime, not the triggering
	// request; a cancelled request must not abort a refresh already
	// decided on.
	lctx, cancel := context.WithTimeout(c.shutdownCtx, 2*time.Second)
	acquired, err := c.locks.Acquire(lctx, lockKey, c.refreshLockTTL)
	cancel()
	if err != nil {
		c.logger.Debug("refresh lock unavailable",
			String("key", key),
			Error(err))
		return
	}
	if !acquired {
		c.logger.Debug("refresh already in progress",
			String("key", key))
		return
	}

	if !c.pool.Submit(func() { c.backgroundRefresh(key, lockKey, fn) }) {
		c.metrics.RecordRefreshDropped(key)
		c.logger.Debug("refresh pool saturated, dropping refresh",
			String("key", key))
		rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = c.locks.Release(rctx, lockKey)
		rcancel()
	}
}

// backgroundRefresh runs on the pool. Failures are contained: they are
// logged and counted, the previously cached value stays authoritative, and
// the refresh lock is released on every exit path.
func (c *Cache) backgroundRefresh(key, lockKey string, fn FetchFunc) {
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.locks.Release(rctx, lockKey)
	}()

	ctx, cancel := context.WithTimeout(c.shutdownCtx, c.refreshTimeout)
	defer cancel()

	data, err := c.fetchWithTimeout(ctx, key, fn)
	if err != nil {
		c.logger.Debug("background refresh failed, stale value remains",
			String("key", key),
			Error(err))
		c.metrics.RecordError(key, err)
		return
	}

	// Windows are computed from completion time, not schedule time.
	c.storeEntry(ctx, key, data)
	c.metrics.RecordHit(key, "refresh")
}

// fetchWithTimeout bounds a fetch that takes no context of its own. On
// timeout the fetch goroutine is abandoned; it runs to completion but its
// result is discarded.
func (c *Cache) fetchWithTimeout(ctx context.Context, key string, fn FetchFunc) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	resCh := make(chan result, 1)

	go func() {
		data, err := c.runFetch(key, fn)
		resCh <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("refresh timed out after %v: %w", c.refreshTimeout, ctx.Err())
	case r := <-resCh:
		return r.data, r.err
	}
}
