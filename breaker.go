package promptcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CircuitState is the state of the upstream circuit breaker.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// ErrCircuitOpen is returned when the breaker refuses a fetch because the
// upstream prompt API is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker wraps a Cache and refuses upstream fetches after repeated
// failures, shielding the remote prompt API from hammering during outages.
// It tracks a global circuit plus per-key failure counts bounded by an LRU
// so pathological keys cannot grow state without limit.
type CircuitBreaker struct {
	cache *Cache

	failureThreshold int32
	successThreshold int32
	timeout          time.Duration
	maxHalfOpenReqs  int32

	state            atomic.Int32
	failures         atomic.Int32
	successes        atomic.Int32
	lastFailureTime  atomic.Int64
	halfOpenRequests atomic.Int32

	keyMu       sync.Mutex
	keyFailures *lru.Cache[string, *keyFailureState]
}

type keyFailureState struct {
	failures        atomic.Int32
	lastFailureTime atomic.Int64
}

// CircuitBreakerConfig tunes a CircuitBreaker. Zero values fall back to
// defaults.
type CircuitBreakerConfig struct {
	Cache            *Cache
	FailureThreshold int32         // failures before opening (default 5)
	SuccessThreshold int32         // half-open successes before closing (default 2)
	Timeout          time.Duration // open duration before probing (default 30s)
	MaxHalfOpenReqs  int32         // concurrent probes in half-open (default 3)
	MaxTrackedKeys   int           // per-key state bound (default 10000)
}

// NewCircuitBreaker wraps cache with breaker protection.
func NewCircuitBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, error) {
	if cfg.Cache == nil {
		return nil, errors.New("cache cannot be nil")
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxHalfOpenReqs == 0 {
		cfg.MaxHalfOpenReqs = 3
	}
	if cfg.MaxTrackedKeys == 0 {
		cfg.MaxTrackedKeys = 10000
	}

	keyFailures, err := lru.New[string, *keyFailureState](cfg.MaxTrackedKeys)
	if err != nil {
		return nil, err
	}

	return &CircuitBreaker{
		cache:            cfg.Cache,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		maxHalfOpenReqs:  cfg.MaxHalfOpenReqs,
		keyFailures:      keyFailures,
	}, nil
}

// Fetch behaves like Cache.Fetch but fails fast with ErrCircuitOpen while
// the upstream is considered down. Cache hits that never reach fn are still
// subject to the breaker check; the breaker guards the whole read path
// because a refused fetch is cheaper than a hung one.
func (cb *CircuitBreaker) Fetch(ctx context.Context, key string, fn FetchFunc) ([]byte, error) {
	if !cb.allow() || !cb.allowKey(key) {
		return nil, ErrCircuitOpen
	}

	if cb.currentState() == CircuitHalfOpen {
		if cb.halfOpenRequests.Add(1) > cb.maxHalfOpenReqs {
			cb.halfOpenRequests.Add(-1)
			return nil, ErrCircuitOpen
		}
		defer cb.halfOpenRequests.Add(-1)
	}

	data, err := cb.cache.Fetch(ctx, key, fn)
	if err != nil {
		cb.recordFailure(key)
	} else {
		cb.recordSuccess(key)
	}
	return data, err
}

// State reports the global circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return cb.currentState()
}

// Reset forces the breaker closed and clears all failure state.
func (cb *CircuitBreaker) Reset() {
	cb.state.Store(int32(CircuitClosed))
	cb.failures.Store(0)
	cb.successes.Store(0)
	cb.halfOpenRequests.Store(0)

	cb.keyMu.Lock()
	cb.keyFailures.Purge()
	cb.keyMu.Unlock()
}

func (cb *CircuitBreaker) currentState() CircuitState {
	return CircuitState(cb.state.Load())
}

func (cb *CircuitBreaker) allow() bool {
	switch cb.currentState() {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Since(time.Unix(0, cb.lastFailureTime.Load())) > cb.timeout {
			cb.state.Store(int32(CircuitHalfOpen))
			cb.successes.Store(0)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) allowKey(key string) bool {
	cb.keyMu.Lock()
	ks, ok := cb.keyFailures.Get(key)
	cb.keyMu.Unlock()
	if !ok {
		return true
	}

	if ks.failures.Load() >= cb.failureThreshold {
		if time.Since(time.Unix(0, ks.lastFailureTime.Load())) > cb.timeout {
			ks.failures.Store(0)
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) recordFailure(key string) {
	failures := cb.failures.Add(1)
	cb.lastFailureTime.Store(time.Now().UnixNano())

	switch cb.currentState() {
	case CircuitClosed:
		if failures >= cb.failureThreshold {
			cb.state.Store(int32(CircuitOpen))
		}
	case CircuitHalfOpen:
		// A failed probe reopens immediately.
		cb.state.Store(int32(CircuitOpen))
		cb.failures.Store(0)
	}

	cb.keyMu.Lock()
	defer cb.keyMu.Unlock()
	if ks, ok := cb.keyFailures.Get(key); ok {
		ks.failures.Add(1)
		ks.lastFailureTime.Store(time.Now().UnixNano())
		return
	}
	ks := &keyFailureState{}
	ks.failures.Store(1)
	ks.lastFailureTime.Store(time.Now().UnixNano())
	cb.keyFailures.Add(key, ks)
}

func (cb *CircuitBreaker) recordSuccess(key string) {
	cb.keyMu.Lock()
	if ks, ok := cb.keyFailures.Get(key); ok {
		ks.failures.Store(0)
	}
	cb.keyMu.Unlock()

	switch cb.currentState() {
	case CircuitHalfOpen:
		if cb.successes.Add(1) >= cb.successThreshold {
			cb.state.Store(int32(CircuitClosed))
			cb.failures.Store(0)
			cb.successes.Store(0)
		}
	case CircuitClosed:
		cb.failures.Store(0)
	}
}
