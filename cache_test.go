package promptcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StrategyResolution(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	logger := newTestLogger(t)

	// No store: local-only caching.
	c, err := New(nil, logger)
	require.NoError(t, err)
	defer c.Shutdown()
	assert.Equal(t, StrategySimple, c.Strategy())

	// Store without stale grace: locked fetch.
	c, err = New(store, logger)
	require.NoError(t, err)
	defer c.Shutdown()
	assert.Equal(t, StrategyLocked, c.Strategy())

	// Store with stale grace: SWR.
	c, err = New(store, logger, WithStaleGrace(time.Minute))
	require.NoError(t, err)
	defer c.Shutdown()
	assert.Equal(t, StrategySWR, c.Strategy())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrNilLogger)

	_, err = NewWithConfig(nil)
	assert.Error(t, err)

	// A non-simple strategy without a store is a configuration error.
	_, err = New(nil, newTestLogger(t), WithStrategy(StrategyLocked))
	assert.Error(t, err)
}

func TestFetchLocal_SimpleStrategy(t *testing.T) {
	c, err := New(nil, newTestLogger(t), WithTTL(time.Minute), WithMaxLocalEntries(10))
	require.NoError(t, err)
	defer c.Shutdown()
	ctx := context.Background()

	var calls atomic.Int32
	fn := func() ([]byte, error) {
		calls.Add(1)
		return []byte("v"), nil
	}

	data, err := c.Fetch(ctx, "prompt", fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)

	data, err = c.Fetch(ctx, "prompt", fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchValue_RoundTrip(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c, err := New(store, newTestLogger(t), WithTTL(time.Minute))
	require.NoError(t, err)
	defer c.Shutdown()
	ctx := context.Background()

	var calls atomic.Int32
	produce := func() (interface{}, error) {
		calls.Add(1)
		return &promptDoc{Name: "greeting", Version: 1, Template: "Hi {{name}}"}, nil
	}

	var first promptDoc
	require.NoError(t, c.FetchValue(ctx, "greeting:v1", &first, produce))
	assert.Equal(t, "greeting", first.Name)

	// Second call deserializes the cached bytes; produce is not called.
	var second promptDoc
	require.NoError(t, c.FetchValue(ctx, "greeting:v1", &second, produce))
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchValue_MsgpackSerializer(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c, err := New(store, newTestLogger(t),
		WithTTL(time.Minute),
		WithSerializer(MsgpackSerializer{}))
	require.NoError(t, err)
	defer c.Shutdown()

	var got promptDoc
	require.NoError(t, c.FetchValue(context.Background(), "k", &got, func() (interface{}, error) {
		return &samplePrompt, nil
	}))
	assert.Equal(t, samplePrompt, got)
}

func TestInvalidate(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c, err := New(store, newTestLogger(t), WithTTL(time.Minute))
	require.NoError(t, err)
	defer c.Shutdown()
	ctx := context.Background()

	var calls atomic.Int32
	fn := func() ([]byte, error) {
		calls.Add(1)
		return []byte("v"), nil
	}

	_, err = c.Fetch(ctx, "prompt", fn)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "prompt"))

	_, err = c.Fetch(ctx, "prompt", fn)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "invalidated key must refetch")
}

func TestInvalidatePrefix(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c, err := New(store, newTestLogger(t), WithTTL(time.Minute))
	require.NoError(t, err)
	defer c.Shutdown()
	ctx := context.Background()

	for _, key := range []string{"greeting", "greeting:v1", "greeting:prod"} {
		_, err := c.Fetch(ctx, key, func() ([]byte, error) { return []byte("v"), nil })
		require.NoError(t, err)
	}

	require.NoError(t, c.InvalidatePrefix(ctx, "greeting"))

	for _, key := range []string{"greeting", "greeting:v1", "greeting:prod"} {
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound, key)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	store := NewMemStore()
	defer store.Close()

	// SWR cache with a pool.
	c, err := New(store, newTestLogger(t), WithTTL(time.Minute), WithStaleGrace(time.Minute))
	require.NoError(t, err)
	c.Shutdown()
	c.Shutdown()

	// Simple cache with no pool at all.
	c2, err := New(nil, newTestLogger(t))
	require.NoError(t, err)
	c2.Shutdown()
	c2.Shutdown()
}

func TestGetEntry_DoesNotTriggerRefresh(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	c := newSWRCache(t, store)
	ctx := context.Background()

	writeEntry(t, store, "prompt", []byte("old"), -time.Second, time.Minute)

	entry, err := c.GetEntry(ctx, "prompt")
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), entry.Data)
	assert.Equal(t, StateRevalidate, entry.State())

	// No refresh lock appears: GetEntry is read-only.
	time.Sleep(50 * time.Millisecond)
	_, err = store.Get(ctx, refreshLockKey("prompt"))
	assert.ErrorIs(t, err, ErrNotFound)
}
