package promptcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a shared Redis instance. This is the
// backend that actually makes the cache distributed: every process pointed
// at the same Redis observes the same entries and locks.
type RedisStore struct {
	client       *redis.Client
	prefix       string
	queryTimeout time.Duration
}

var _ Store = (*RedisStore)(nil)

// DefaultQueryTimeout bounds each Redis operation so a slow or partitioned
// store cannot hang the read path indefinitely.
const DefaultQueryTimeout = 5 * time.Second

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key with prefix + ":".
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithQueryTimeout overrides the per-operation timeout.
func WithQueryTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// NewRedisStore wraps an existing redis client. The caller owns the client
// lifecycle; Close is a no-op on it.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:       client,
		queryTimeout: DefaultQueryTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisStore) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.queryTimeout)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	data, err := s.client.Get(qctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.client.Set(qctx, s.key(key), value, ttl).Err()
}

// SetIfAbsent maps directly onto SETNX, which Redis guarantees to be a
// single atomic operation.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.client.SetNX(qctx, s.key(key), value, ttl).Result()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.client.Del(qctx, s.key(key)).Err()
}

// DeletePrefix scans rather than using KEYS so large keyspaces don't block
// the Redis server.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	iter := s.client.Scan(qctx, 0, s.key(prefix)+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(qctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := s.client.Del(qctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.client.Del(qctx, batch...).Err()
	}
	return nil
}

// Close is a no-op; the caller owns the redis.Client lifecycle.
func (s *RedisStore) Close() error {
	return nil
}
