package promptcache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc fetches the authoritative value for a key, typically by calling
// the remote prompt API. It must be idempotent and safe to call
// concurrently. Panics inside the function are recovered and returned as
// errors.
type FetchFunc func() ([]byte, error)

// Cache is the read-through cache adapter. A single strategy is selected at
// construction and every Fetch dispatches on it. All methods are
// goroutine-safe.
type Cache struct {
	strategy   Strategy
	store      Store
	local      *TTLCache
	locks      *DistributedLock
	pool       *RefreshPool
	sfg        singleflight.Group
	logger     Logger
	metrics    CacheMetrics
	serializer Serializer

	ttl            time.Duration
	staleGrace     time.Duration
	lockTimeout    time.Duration
	refreshLockTTL time.Duration
	refreshTimeout time.Duration

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	shutdownOnce   sync.Once
}

// New constructs a Cache over store with the given options. A nil store
// selects StrategySimple.
func New(store Store, logger Logger, opts ...Option) (*Cache, error) {
	cfg := &Config{Store: store, Logger: logger}
	for _, o := range opts {
		o(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig constructs a Cache from a full configuration.
func NewWithConfig(cfg *Config) (*Cache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, ErrNilLogger
	}
	cfg.SetDefaults()

	if cfg.Strategy != StrategySimple && cfg.Store == nil {
		return nil, fmt.Errorf("strategy %q requires a store", cfg.Strategy)
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	c := &Cache{
		strategy:       cfg.Strategy,
		store:          cfg.Store,
		logger:         cfg.Logger.Named("promptcache"),
		metrics:        cfg.Metrics,
		serializer:     cfg.Serializer,
		ttl:            cfg.TTL,
		staleGrace:     cfg.StaleGrace,
		lockTimeout:    cfg.LockTimeout,
		refreshLockTTL: cfg.RefreshLockTTL,
		refreshTimeout: cfg.RefreshTimeout,
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	switch cfg.Strategy {
	case StrategySimple:
		c.local = NewTTLCache(cfg.MaxLocalEntries, cfg.TTL)
	case StrategyLocked:
		c.locks = NewDistributedLock(cfg.Store, cfg.Logger)
	case StrategySWR:
		c.locks = NewDistributedLock(cfg.Store, cfg.Logger)
		c.pool = NewRefreshPool(cfg.RefreshWorkers, cfg.RefreshQueueSize, cfg.Logger)
	default:
		shutdownCancel()
		return nil, fmt.Errorf("unknown strategy %d", cfg.Strategy)
	}

	c.logger.Info("cache initialised",
		String("strategy", cfg.Strategy.String()),
		Duration("ttl", cfg.TTL),
		Duration("stale_grace", cfg.StaleGrace))

	return c, nil
}

// Strategy reports the resolved strategy.
func (c *Cache) Strategy() Strategy {
	return c.strategy
}

// Fetch returns the cached value for key, invoking fn to populate on
// miss/stale according to the configured strategy. Errors from fn on the
// synchronous path propagate to the caller unchanged; background refresh
// failures are logged and contained.
func (c *Cache) Fetch(ctx context.Context, key string, fn FetchFunc) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	switch c.strategy {
	case StrategySimple:
		return c.fetchLocal(key, fn)
	case StrategySWR:
		return c.fetchWithSWR(ctx, key, fn)
	default:
		return c.fetchWithLock(ctx, key, fn)
	}
}

// FetchValue is the typed convenience layer: produce is called on
// miss/stale, its result is serialized into the cache, and the cached bytes
// are deserialized into result on every path.
func (c *Cache) FetchValue(ctx context.Context, key string, result interface{}, produce func() (interface{}, error)) error {
	data, err := c.Fetch(ctx, key, func() ([]byte, error) {
		v, err := produce()
		if err != nil {
			return nil, err
		}
		return c.serializer.Marshal(v)
	})
	if err != nil {
		return err
	}
	if err := c.serializer.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshal cached value: %w", err)
	}
	return nil
}

// GetEntry reads the stored SWR entry for key without triggering any
// refresh. Only meaningful under StrategySWR; other strategies return
// ErrNotFound for keys they store as raw bytes.
func (c *Cache) GetEntry(ctx context.Context, key string) (*Entry, error) {
	if c.store == nil {
		return nil, ErrNotFound
	}
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return DecodeEntry(raw)
}

// Invalidate removes key from the cache.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c.local != nil {
		c.local.Delete(key)
	}
	if c.store != nil {
		return c.store.Delete(ctx, key)
	}
	return nil
}

// InvalidatePrefix removes every key starting with prefix, e.g. all
// versions and labels of one prompt.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	if c.local != nil {
		c.local.Clear()
	}
	if c.store != nil {
		return c.store.DeletePrefix(ctx, prefix)
	}
	return nil
}

// Shutdown stops background refreshes, waiting briefly for in-flight work.
// Idempotent and safe when SWR (and hence the pool) is disabled.
func (c *Cache) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Info("shutting down cache")
		c.shutdownCancel()
		c.pool.Shutdown(5 * time.Second)
	})
}

// fetchLocal is the single-process fallback: a bounded TTL map, no
// distributed coordination. In-process callers still collapse through
// singleflight so a cold key costs one upstream call.
func (c *Cache) fetchLocal(key string, fn FetchFunc) ([]byte, error) {
	if data, ok := c.local.Get(key); ok {
		c.metrics.RecordHit(key, "local")
		return bytes.Clone(data), nil
	}

	c.metrics.RecordMiss(key)
	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		data, err := c.runFetch(key, fn)
		if err != nil {
			return nil, err
		}
		c.local.Set(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

// runFetch invokes the user callback with panic recovery and latency
// tracking.
func (c *Cache) runFetch(key string, fn FetchFunc) (data []byte, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panic: %v", r)
			c.logger.Error("fetch function panicked",
				String("key", key),
				Any("panic", r))
		}
		c.metrics.RecordLatency(key, time.Since(start))
		if err != nil {
			c.metrics.RecordError(key, err)
		}
	}()

	return fn()
}
