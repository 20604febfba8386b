package promptcache

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not present in the store.
	ErrNotFound = errors.New("key not found in store")

	// ErrNilLogger is returned when a nil logger is provided.
	ErrNilLogger = errors.New("logger cannot be nil")

	// ErrEmptyKey is returned when an empty cache key is supplied.
	ErrEmptyKey = errors.New("cache key cannot be empty")
)

// Store defines the shared key-value store used for cached values and
// distributed locks. Implementations must make each operation individually
// atomic; no cross-key transactions are assumed.
//
// All processes sharing a Store observe the same cached entries and lock
// state, making it the single synchronization point across process
// boundaries.
type Store interface {
	// Get retrieves the raw bytes stored under key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL. A ttl of zero means
	// no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent atomically stores value under key only if the key does
	// not already exist. Returns true iff this call created the key.
	// This must be a single atomic operation, not a read-then-write.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key from the store. Idempotent: deleting a missing
	// key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key that starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases store resources. Safe to call multiple times.
	Close() error
}
