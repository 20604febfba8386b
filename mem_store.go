package promptcache

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-process Store implementation. It exists for tests and
// single-node harnesses; it obviously provides no cross-process sharing.
type MemStore struct {
	mu      sync.Mutex
	items   map[string]memItem
	janitor *time.Ticker
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

type memItem struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemStore creates an in-memory store with a background janitor sweeping
// expired keys once a minute.
func NewMemStore() *MemStore {
	s := &MemStore{
		items:   make(map[string]memItem),
		janitor: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweep()
	return s
}

func (s *MemStore) sweep() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.janitor.C:
			now := time.Now()
			s.mu.Lock()
			for k, it := range s.items {
				if !it.expiresAt.IsZero() && now.After(it.expiresAt) {
					delete(s.items, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemStore) expired(it memItem) bool {
	return !it.expiresAt.IsZero() && time.Now().After(it.expiresAt)
}

func (s *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok || s.expired(it) {
		return nil, ErrNotFound
	}
	return bytes.Clone(it.data), nil
}

func (s *MemStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = memItem{data: bytes.Clone(value), expiresAt: expiry(ttl)}
	return nil
}

func (s *MemStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.items[key]; ok && !s.expired(it) {
		return false, nil
	}
	s.items[key] = memItem{data: bytes.Clone(value), expiresAt: expiry(ttl)}
	return true, nil
}

func (s *MemStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *MemStore) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			delete(s.items, k)
		}
	}
	return nil
}

func (s *MemStore) Close() error {
	s.once.Do(func() {
		s.janitor.Stop()
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
