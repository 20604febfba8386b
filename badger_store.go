package promptcache

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// BadgerConfig tunes the embedded Badger backend. Defaults favor the
// latency profile of prompt caching: small JSON documents, read-heavy,
// modest write rates.
type BadgerConfig struct {
	Dir        string
	ValueDir   string
	SyncWrites bool

	Compression      options.CompressionType
	MemTableSize     int64
	NumCompactors    int
	ValueLogFileSize int64

	GCInterval     time.Duration
	GCDiscardRatio float64

	Logger badger.Logger // nil silences Badger's own logging
}

// DefaultBadgerConfig returns a configuration suitable for a local prompt
// cache directory.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:              dir,
		ValueDir:         dir,
		SyncWrites:       false,
		Compression:      options.None,
		MemTableSize:     64 << 20, // 64MB
		NumCompactors:    runtime.GOMAXPROCS(0),
		ValueLogFileSize: 256 << 20, // 256MB
		GCInterval:       10 * time.Minute,
		GCDiscardRatio:   0.7,
	}
}

// BadgerStore implements Store on an embedded Badger database. It is a
// persistent single-node backend: useful for surviving restarts and for
// integration tests against a real storage engine, but it does not
// coordinate across processes the way Redis does.
type BadgerStore struct {
	db             *badger.DB
	gcInterval     time.Duration
	gcDiscardRatio float64

	closeOnce sync.Once
	wg        sync.WaitGroup
	done      chan struct{}
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the database at cfg.Dir. Badger's Open
// is blocking, so it runs in a goroutine and ctx can cancel the wait.
func NewBadgerStore(ctx context.Context, cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.
		DefaultOptions(cfg.Dir).
		WithValueDir(cfg.ValueDir).
		WithSyncWrites(cfg.SyncWrites).
		WithCompression(cfg.Compression).
		WithMemTableSize(cfg.MemTableSize).
		WithNumCompactors(cfg.NumCompactors).
		WithValueLogFileSize(cfg.ValueLogFileSize).
		WithLogger(cfg.Logger)

	type openResult struct {
		db  *badger.DB
		err error
	}
	resCh := make(chan openResult, 1)
	go func() {
		db, err := badger.Open(opts)
		resCh <- openResult{db: db, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resCh:
		if r.err != nil {
			return nil, r.err
		}
		s := &BadgerStore{
			db:             r.db,
			gcInterval:     cfg.GCInterval,
			gcDiscardRatio: cfg.GCDiscardRatio,
			done:           make(chan struct{}),
		}
		s.wg.Add(1)
		go s.runValueLogGC()
		return s, nil
	}
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			data = bytes.Clone(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// SetIfAbsent piggybacks on Badger's serializable transactions: the
// presence check and the write commit atomically or not at all.
func (s *BadgerStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil // already present
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		if err := txn.SetEntry(e); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropPrefix([]byte(prefix))
}

func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// runValueLogGC periodically reclaims value-log space. Badger returns
// ErrNoRewrite when there is nothing to collect; everything else is
// transient and retried next tick.
func (s *BadgerStore) runValueLogGC() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			for i := 0; i < 3; i++ {
				if err := s.db.RunValueLogGC(s.gcDiscardRatio); err != nil {
					break
				}
			}
		}
	}
}
