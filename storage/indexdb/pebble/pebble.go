package pebble

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/contrib/log"
	"github.com/omalloc/spancache/pkg/encoding"
	"github.com/omalloc/spancache/storage/indexdb"
)

var _ storage.IndexDB = (*PebbleDB)(nil)

type dbOptions struct {
	Sync          bool `yaml:"sync"`
	SkipErrRecord bool `yaml:"skip_err_record"`
}

type PebbleDB struct {
	codec         encoding.Codec
	db            *pebble.DB
	writeOpts     *pebble.WriteOptions
	skipErrRecord bool
}

func init() {
	indexdb.Register("pebble", NewPebbleDB)
}

// NewPebbleDB opens a pebble index at path. The path indexdb.TypeInMemory
// keeps it in a memory-backed vfs.
func NewPebbleDB(path string, option storage.Option) (storage.IndexDB, error) {
	var opts dbOptions
	if err := option.Unmarshal(&opts); err != nil {
		return nil, err
	}

	popts := &pebble.Options{
		Logger: log.NewHelper(log.NewFilter(log.GetLogger(), log.FilterLevel(log.LevelWarn))),
	}
	if path == indexdb.TypeInMemory || path == "" {
		popts.FS = vfs.NewMem()
		popts.DisableWAL = true
		path = ""
	}

	db, err := pebble.Open(path, popts)
	if err != nil {
		return nil, err
	}

	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}

	return &PebbleDB{
		codec:         option.Codec(),
		db:            db,
		writeOpts:     writeOpts,
		skipErrRecord: opts.SkipErrRecord,
	}, nil
}

// Close implements [storage.IndexDB].
func (p *PebbleDB) Close() error {
	return p.db.Close()
}

// Get implements [storage.IndexDB].
func (p *PebbleDB) Get(_ context.Context, key []byte) (*object.Metadata, error) {
	val, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}
	defer func() { _ = closer.Close() }()

	meta := &object.Metadata{}
	if err := p.codec.Unmarshal(val, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Set implements [storage.IndexDB].
func (p *PebbleDB) Set(_ context.Context, key []byte, val *object.Metadata) error {
	buf, err := p.codec.Marshal(val)
	if err != nil {
		return err
	}
	return p.db.Set(key, buf, p.writeOpts)
}

// Exist implements [storage.IndexDB].
func (p *PebbleDB) Exist(_ context.Context, key []byte) bool {
	_, closer, err := p.db.Get(key)
	if err != nil {
		return false
	}
	_ = closer.Close()
	return true
}

// Delete implements [storage.IndexDB].
func (p *PebbleDB) Delete(_ context.Context, key []byte) error {
	return p.db.Delete(key, p.writeOpts)
}

// Iterate implements [storage.IndexDB].
func (p *PebbleDB) Iterate(ctx context.Context, prefix []byte, f storage.IterateFunc) error {
	iterOpts := &pebble.IterOptions{}
	if len(prefix) > 0 {
		iterOpts.LowerBound = prefix
		iterOpts.UpperBound = keyUpperBound(prefix)
	}

	iter, err := p.db.NewIterWithContext(ctx, iterOpts)
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		meta := &object.Metadata{}
		if err := p.codec.Unmarshal(val, meta); err != nil {
			if p.skipErrRecord {
				log.Warnf("skip broken index record %q: %v", iter.Key(), err)
				continue
			}
			return err
		}

		key := append([]byte(nil), iter.Key()...)
		if !f(key, meta) {
			break
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
