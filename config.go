package promptcache

import (
	"time"
)

// Strategy identifies how Fetch coordinates concurrent callers. It is
// resolved exactly once, at configuration time; there is no runtime
// capability probing.
type Strategy int

const (
	// StrategyUnset lets Config.SetDefaults pick based on what is
	// configured: no store means StrategySimple, a store with a stale
	// grace period means StrategySWR, otherwise StrategyLocked.
	StrategyUnset Strategy = iota

	// StrategySimple serves from the process-local bounded TTL cache.
	StrategySimple

	// StrategyLocked serializes population of the shared store through a
	// distributed lock with bounded-wait fallback.
	StrategyLocked

	// StrategySWR serves stale entries while refreshing them in the
	// background through the bounded pool.
	StrategySWR
)

func (s Strategy) String() string {
	switch s {
	case StrategySimple:
		return "simple"
	case StrategyLocked:
		return "locked"
	case StrategySWR:
		return "swr"
	default:
		return "unset"
	}
}

// Defaults applied by Config.SetDefaults.
const (
	DefaultTTL            = time.Minute
	DefaultLockTimeout    = 10 * time.Second
	DefaultRefreshLockTTL = 60 * time.Second
	DefaultRefreshTimeout = 30 * time.Second
)

// Config configures a Cache. All dependencies are injected explicitly;
// there is no package-level singleton to initialize.
type Config struct {
	// Store is the shared distributed store. nil selects StrategySimple
	// (process-local caching only).
	Store Store

	// Logger is required.
	Logger Logger

	// Metrics defaults to NoOpMetrics.
	Metrics CacheMetrics

	// Serializer handles FetchValue round-trips. Defaults to
	// JSONSerializer.
	Serializer Serializer

	// TTL is the fresh lifetime of a cached value.
	TTL time.Duration

	// StaleGrace is the revalidate window appended after TTL. Zero
	// disables SWR entirely; SWR is strictly opt-in.
	StaleGrace time.Duration

	// LockTimeout is the TTL on population locks; it bounds how long a
	// crashed holder can block other processes.
	LockTimeout time.Duration

	// RefreshLockTTL is the TTL on the per-key background-refresh dedup
	// lock.
	RefreshLockTTL time.Duration

	// RefreshTimeout bounds each background fetch.
	RefreshTimeout time.Duration

	// MaxLocalEntries bounds the local cache for StrategySimple.
	MaxLocalEntries int

	// RefreshWorkers and RefreshQueueSize size the background pool.
	RefreshWorkers   int
	RefreshQueueSize int

	// Strategy may be forced explicitly; StrategyUnset resolves from the
	// fields above.
	Strategy Strategy
}

// SetDefaults fills zero fields and resolves the strategy. SWR configured
// without a stale grace period degrades to StrategyLocked, so a partial SWR
// configuration never changes read semantics silently.
func (c *Config) SetDefaults() {
	if c.Metrics == nil {
		c.Metrics = NoOpMetrics{}
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.RefreshLockTTL <= 0 {
		c.RefreshLockTTL = DefaultRefreshLockTTL
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = DefaultRefreshTimeout
	}
	if c.MaxLocalEntries <= 0 {
		c.MaxLocalEntries = DefaultMaxLocalEntries
	}
	if c.RefreshWorkers <= 0 {
		c.RefreshWorkers = DefaultRefreshWorkers
	}
	if c.RefreshQueueSize <= 0 {
		c.RefreshQueueSize = DefaultRefreshQueueSize
	}

	if c.Strategy == StrategyUnset {
		switch {
		case c.Store == nil:
			c.Strategy = StrategySimple
		case c.StaleGrace > 0:
			c.Strategy = StrategySWR
		default:
			c.Strategy = StrategyLocked
		}
	}
	if c.Strategy == StrategySWR && c.StaleGrace <= 0 {
		c.Strategy = StrategyLocked
	}
}

// Option tunes a Cache built through New.
type Option func(*Config)

// WithTTL sets the fresh lifetime of cached values.
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) {
		if ttl > 0 {
			c.TTL = ttl
		}
	}
}

// WithStaleGrace enables SWR with the given revalidate window.
func WithStaleGrace(grace time.Duration) Option {
	return func(c *Config) {
		if grace > 0 {
			c.StaleGrace = grace
		}
	}
}

// WithLockTimeout sets the population lock TTL.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.LockTimeout = d
		}
	}
}

// WithRefreshLockTTL sets the background-refresh dedup lock TTL.
func WithRefreshLockTTL(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.RefreshLockTTL = d
		}
	}
}

// WithRefreshTimeout bounds each background fetch.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.RefreshTimeout = d
		}
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(m CacheMetrics) Option {
	return func(c *Config) {
		if m != nil {
			c.Metrics = m
		}
	}
}

// WithSerializer sets the FetchValue serializer.
func WithSerializer(s Serializer) Option {
	return func(c *Config) {
		if s != nil {
			c.Serializer = s
		}
	}
}

// WithMaxLocalEntries bounds the local cache used by StrategySimple.
func WithMaxLocalEntries(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxLocalEntries = n
		}
	}
}

// WithRefreshPoolSize sizes the background refresh pool.
func WithRefreshPoolSize(workers, queueSize int) Option {
	return func(c *Config) {
		if workers > 0 {
			c.RefreshWorkers = workers
		}
		if queueSize > 0 {
			c.RefreshQueueSize = queueSize
		}
	}
}

// WithStrategy forces a strategy instead of resolving one from the
// configuration.
func WithStrategy(s Strategy) Option {
	return func(c *Config) {
		if s != StrategyUnset {
			c.Strategy = s
		}
	}
}
