package promptcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// newTestLogger returns a zap-backed logger wired into the test output. Do
// not use it for caches whose background goroutines may outlive the test;
// use NewNoOpLogger there instead.
func newTestLogger(t *testing.T) Logger {
	l, err := NewZapLogger(zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("test logger: %v", err)
	}
	return l
}

// flakyStore wraps a Store with per-operation error injection.
type flakyStore struct {
	Store

	mu          sync.Mutex
	getErr      error
	setErr      error
	setNXErr    error
	deleteErr   error
	setNXCalls  atomic.Int32
	deleteCalls atomic.Int32
}

func newFlakyStore(inner Store) *flakyStore {
	return &flakyStore{Store: inner}
}

func (f *flakyStore) fail(getErr, setErr, setNXErr, deleteErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr, f.setErr, f.setNXErr, f.deleteErr = getErr, setErr, setNXErr, deleteErr
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	err := f.setErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Set(ctx, key, value, ttl)
}

func (f *flakyStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	f.setNXCalls.Add(1)
	f.mu.Lock()
	err := f.setNXErr
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.Store.SetIfAbsent(ctx, key, value, ttl)
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	f.deleteCalls.Add(1)
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Delete(ctx, key)
}
