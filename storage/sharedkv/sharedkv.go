package sharedkv

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/contrib/log"
)

var _ storage.SharedKV = (*pebbleKV)(nil)

type pebbleKV struct {
	// serializes read-modify-write counters
	mu sync.Mutex
	db *pebble.DB
}

// NewStoreSharedKV opens a persistent kv store at storePath.
func NewStoreSharedKV(storePath string) (storage.SharedKV, error) {
	return open(storePath, &pebble.Options{
		DisableWAL: true,
		Logger:     log.NewHelper(log.NewFilter(log.GetLogger(), log.FilterLevel(log.LevelWarn))),
	})
}

// NewMemSharedKV creates a kv store that lives in memory only.
func NewMemSharedKV() storage.SharedKV {
	kv, err := open("", &pebble.Options{
		FS:         vfs.NewMem(),
		DisableWAL: true,
		Logger:     log.NewHelper(log.NewFilter(log.GetLogger(), log.FilterLevel(log.LevelWarn))),
	})
	if err != nil {
		panic(err)
	}
	return kv
}

func open(storePath string, opts *pebble.Options) (*pebbleKV, error) {
	db, err := pebble.Open(storePath, opts)
	if err != nil {
		return nil, err
	}
	return &pebbleKV{db: db}, nil
}

func (r *pebbleKV) Close() error {
	return r.db.Close()
}

func (r *pebbleKV) Get(_ context.Context, key []byte) ([]byte, error) {
	val, c, err := r.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}
	defer func() { _ = c.Close() }()

	return append([]byte(nil), val...), nil
}

func (r *pebbleKV) Set(_ context.Context, key []byte, val []byte) error {
	return r.db.Set(key, val, pebble.NoSync)
}

func (r *pebbleKV) Incr(_ context.Context, key []byte, delta uint64) (uint64, error) {
	return r.update(key, func(counter uint64) uint64 {
		return counter + delta
	})
}

func (r *pebbleKV) Decr(_ context.Context, key []byte, delta uint64) (uint64, error) {
	return r.update(key, func(counter uint64) uint64 {
		if counter > delta {
			return counter - delta
		}
		return 0
	})
}

func (r *pebbleKV) update(key []byte, fn func(uint64) uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, err := r.counter(key)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return 0, err
	}

	counter = fn(counter)

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)
	if err := r.db.Set(key, buf, pebble.NoSync); err != nil {
		return 0, err
	}
	return counter, nil
}

func (r *pebbleKV) GetCounter(_ context.Context, key []byte) (uint64, error) {
	return r.counter(key)
}

func (r *pebbleKV) counter(key []byte) (uint64, error) {
	val, closer, err := r.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, storage.ErrKeyNotFound
		}
		return 0, err
	}
	defer func() { _ = closer.Close() }()

	if len(val) != 8 {
		return 0, errors.New("sharedkv: value is not a counter")
	}
	return binary.BigEndian.Uint64(val), nil
}

func (r *pebbleKV) Delete(_ context.Context, key []byte) error {
	return r.db.Delete(key, pebble.NoSync)
}

func (r *pebbleKV) DropPrefix(_ context.Context, prefix []byte) error {
	end := keyUpperBound(prefix)
	if end == nil {
		return errors.New("sharedkv: prefix has no upper bound")
	}
	return r.db.DeleteRange(prefix, end, pebble.NoSync)
}

func (r *pebbleKV) IteratePrefix(ctx context.Context, prefix []byte, f func(key []byte, val []byte) error) error {
	iter, err := r.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err1 := iter.ValueAndErr()
		if err1 != nil {
			continue
		}
		if err1 = f(iter.Key(), value); err1 != nil {
			return err1
		}
	}
	return iter.Error()
}

func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // no upper-bound
}
