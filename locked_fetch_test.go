package promptcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockedCache(t *testing.T, store Store, opts ...Option) *Cache {
	t.Helper()
	base := []Option{WithTTL(time.Minute)}
	c, err := New(store, newTestLogger(t), append(base, opts...)...)
	require.NoError(t, err)
	require.Equal(t, StrategyLocked, c.Strategy())
	t.Cleanup(c.Shutdown)
	return c
}

func TestFetchWithLock_MissThenHit(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c := newLockedCache(t, store)
	ctx := context.Background()

	var calls atomic.Int32
	fn := func() ([]byte, error) {
		calls.Add(1)
		return []byte("v1"), nil
	}

	data, err := c.Fetch(ctx, "prompt", fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)
	assert.Equal(t, int32(1), calls.Load())

	// Second read is a fast-path hit, no fetch and no lock contact.
	data, err = c.Fetch(ctx, "prompt", fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchWithLock_SingleFetchUnderContention(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c := newLockedCache(t, store)
	ctx := context.Background()

	var calls atomic.Int32
	fn := func() ([]byte, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond) // widen the race window
		return []byte("shared"), nil
	}

	const n = 32
	results := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Fetch(ctx, "hot", fn)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "exactly one fetch across all callers")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("shared"), results[i])
	}
}

func TestFetchWithLock_WaitsForLockHolder(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c := newLockedCache(t, store)
	ctx := context.Background()

	// Simulate a lock holder in another process.
	ok, err := store.SetIfAbsent(ctx, populateLockKey("prompt"), lockToken, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The "other process" populates the cache after ~80ms.
	go func() {
		time.Sleep(80 * time.Millisecond)
		_ = store.Set(context.Background(), "prompt", []byte("populated"), time.Minute)
	}()

	fn := func() ([]byte, error) {
		t.Error("fetch must not run while the holder populates in time")
		return nil, nil
	}

	start := time.Now()
	data, err := c.Fetch(ctx, "prompt", fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("populated"), data)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestFetchWithLock_FallbackWhenHolderNeverFinishes(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c := newLockedCache(t, store)
	ctx := context.Background()

	// A holder that crashed: lock present, value never written.
	ok, err := store.SetIfAbsent(ctx, populateLockKey("prompt"), lockToken, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	var calls atomic.Int32
	fn := func() ([]byte, error) {
		calls.Add(1)
		return []byte("rescued"), nil
	}

	start := time.Now()
	data, err := c.Fetch(ctx, "prompt", fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("rescued"), data)
	assert.Equal(t, int32(1), calls.Load())
	// Full backoff schedule is ~350ms.
	assert.GreaterOrEqual(t, time.Since(start), 340*time.Millisecond)

	// The rescued value is cached for subsequent readers.
	cached, err := store.Get(ctx, "prompt")
	require.NoError(t, err)
	assert.Equal(t, []byte("rescued"), cached)
}

func TestFetchWithLock_ReleasesLockOnFetchError(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c := newLockedCache(t, store)
	ctx := context.Background()

	fetchErr := errors.New("upstream 500")
	_, err := c.Fetch(ctx, "prompt", func() ([]byte, error) {
		return nil, fetchErr
	})
	assert.ErrorIs(t, err, fetchErr)

	// Lock must be gone even though the critical section failed.
	_, err = store.Get(ctx, populateLockKey("prompt"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchWithLock_ReleasesLockOnFetchPanic(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c := newLockedCache(t, store)
	ctx := context.Background()

	_, err := c.Fetch(ctx, "prompt", func() ([]byte, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch panic")

	_, err = store.Get(ctx, populateLockKey("prompt"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchWithLock_LockStoreOutagePropagates(t *testing.T) {
	flaky := newFlakyStore(NewMemStore())
	defer flaky.Store.Close()
	c := newLockedCache(t, flaky)
	ctx := context.Background()

	outage := errors.New("store unreachable")
	flaky.fail(nil, nil, outage, nil)

	var calls atomic.Int32
	_, err := c.Fetch(ctx, "prompt", func() ([]byte, error) {
		calls.Add(1)
		return []byte("v"), nil
	})
	assert.ErrorIs(t, err, outage)
	assert.Equal(t, int32(0), calls.Load(), "must not silently fetch unlocked on lock outage")
}

func TestFetchWithLock_StoreSetFailureStillServesValue(t *testing.T) {
	flaky := newFlakyStore(NewMemStore())
	defer flaky.Store.Close()
	c := newLockedCache(t, flaky)
	ctx := context.Background()

	flaky.fail(nil, errors.New("write refused"), nil, nil)

	data, err := c.Fetch(ctx, "prompt", func() ([]byte, error) {
		return []byte("v1"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)

	// Lock released despite the failed write.
	_, err = flaky.Store.Get(ctx, populateLockKey("prompt"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchWithLock_ContextCancelledWhileWaiting(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c := newLockedCache(t, store)

	ok, err := store.SetIfAbsent(context.Background(), populateLockKey("prompt"), lockToken, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_, err = c.Fetch(ctx, "prompt", func() ([]byte, error) {
		return []byte("v"), nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_EmptyKey(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c := newLockedCache(t, store)

	_, err := c.Fetch(context.Background(), "", func() ([]byte, error) {
		return []byte("v"), nil
	})
	assert.ErrorIs(t, err, ErrEmptyKey)
}
