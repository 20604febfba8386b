// Package promptcache implements read-through caching for remote prompt
// documents with stampede protection and stale-while-revalidate semantics.
//
// Three strategies are supported, selected once at configuration time:
//
//   - StrategySimple: a process-local bounded TTL cache, used when no
//     distributed store is configured.
//   - StrategyLocked: a distributed-lock protected read-through cache. The
//     first caller to miss acquires a per-key lock and populates the shared
//     store; concurrent callers wait with bounded backoff and fall back to
//     fetching themselves if the lock holder never finishes.
//   - StrategySWR: stale-while-revalidate. Reads within the fresh window
//     return immediately; reads within the stale grace window return the
//     cached value and schedule a deduplicated background refresh through a
//     bounded worker pool; reads past the grace window refetch synchronously.
//
// Cross-process coordination happens exclusively through the Store interface
// (write-if-absent locks with TTL auto-expiry); in-process callers
// additionally collapse through singleflight so a cold key costs a single
// upstream call per process.
package promptcache
