package promptcache

import (
	"time"
)

// CacheMetrics is the observability hook for cache behavior. Methods must be
// fast and non-blocking; they run on the read path.
type CacheMetrics interface {
	// RecordHit tracks a served read. Status values: "fresh", "revalidate",
	// "stale", "local", "waited", "refresh".
	RecordHit(key string, status string)

	// RecordMiss tracks a read that required an upstream fetch.
	RecordMiss(key string)

	// RecordError tracks failures (fetch, store, lock).
	RecordError(key string, err error)

	// RecordLatency tracks upstream fetch timing.
	RecordLatency(key string, duration time.Duration)

	// RecordRefreshDropped tracks background refreshes discarded because
	// the refresh pool was saturated.
	RecordRefreshDropped(key string)
}

// NoOpMetrics discards all measurements. It is the default so metrics stay
// strictly opt-in.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordHit(key string, status string)              {}
func (NoOpMetrics) RecordMiss(key string)                            {}
func (NoOpMetrics) RecordError(key string, err error)                {}
func (NoOpMetrics) RecordLatency(key string, duration time.Duration) {}
func (NoOpMetrics) RecordRefreshDropped(key string)                  {}
