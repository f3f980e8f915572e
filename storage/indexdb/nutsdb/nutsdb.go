package nutsdb

import (
	"bytes"
	"context"
	"errors"

	"github.com/nutsdb/nutsdb"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/pkg/encoding"
	"github.com/omalloc/spancache/storage/indexdb"
)

var _ storage.IndexDB = (*NutsDB)(nil)

const defaultBucket = "spancache"

type dbOptions struct {
	Bucket      string `yaml:"bucket"`
	SegmentSize int64  `yaml:"segment_size"`
	SyncEnable  bool   `yaml:"sync_enable"`
}

type NutsDB struct {
	codec  encoding.Codec
	db     *nutsdb.DB
	bucket string
}

func init() {
	indexdb.Register("nutsdb", NewNutsDB)
}

func NewNutsDB(path string, option storage.Option) (storage.IndexDB, error) {
	var opts dbOptions
	if err := option.Unmarshal(&opts); err != nil {
		return nil, err
	}
	if opts.Bucket == "" {
		opts.Bucket = defaultBucket
	}

	dbOpts := []nutsdb.Option{
		nutsdb.WithDir(path),
		nutsdb.WithSyncEnable(opts.SyncEnable),
	}
	if opts.SegmentSize > 0 {
		dbOpts = append(dbOpts, nutsdb.WithSegmentSize(opts.SegmentSize))
	}

	db, err := nutsdb.Open(nutsdb.DefaultOptions, dbOpts...)
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *nutsdb.Tx) error {
		if tx.ExistBucket(nutsdb.DataStructureBTree, opts.Bucket) {
			return nil
		}
		return tx.NewBucket(nutsdb.DataStructureBTree, opts.Bucket)
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &NutsDB{
		codec:  option.Codec(),
		db:     db,
		bucket: opts.Bucket,
	}, nil
}

// Close implements [storage.IndexDB].
func (n *NutsDB) Close() error {
	return n.db.Close()
}

// Delete implements [storage.IndexDB].
func (n *NutsDB) Delete(ctx context.Context, key []byte) error {
	err := n.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Delete(n.bucket, key)
	})
	if errors.Is(err, nutsdb.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Exist implements [storage.IndexDB].
func (n *NutsDB) Exist(ctx context.Context, key []byte) bool {
	var ret bool
	if err := n.db.View(func(tx *nutsdb.Tx) error {
		v, err := tx.Get(n.bucket, key)
		if err != nil {
			return err
		}
		ret = v != nil
		return nil
	}); err != nil {
		return false
	}
	return ret
}

// Get implements [storage.IndexDB].
func (n *NutsDB) Get(ctx context.Context, key []byte) (*object.Metadata, error) {
	meta := &object.Metadata{}
	if err := n.db.View(func(tx *nutsdb.Tx) error {
		v, err := tx.Get(n.bucket, key)
		if err != nil {
			return err
		}
		return n.codec.Unmarshal(v, meta)
	}); err != nil {
		if errors.Is(err, nutsdb.ErrKeyNotFound) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}
	return meta, nil
}

// Iterate implements [storage.IndexDB].
func (n *NutsDB) Iterate(ctx context.Context, prefix []byte, f storage.IterateFunc) error {
	return n.db.View(func(tx *nutsdb.Tx) error {
		iterator := nutsdb.NewIterator(tx, n.bucket, nutsdb.IteratorOptions{Reverse: false})
		if iterator == nil {
			return nil
		}

		var ok bool
		if len(prefix) > 0 {
			ok = iterator.Seek(prefix)
		} else {
			ok = iterator.Rewind()
		}

		for ; ok && iterator.Valid(); ok = iterator.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			key := iterator.Key()
			if len(prefix) > 0 && !bytes.HasPrefix(key, prefix) {
				return nil
			}

			buf, err := iterator.Value()
			if err != nil {
				continue
			}

			meta := &object.Metadata{}
			if err := n.codec.Unmarshal(buf, meta); err != nil {
				continue
			}
			if !f(append([]byte(nil), key...), meta) {
				return nil
			}
		}
		return nil
	})
}

// Set implements [storage.IndexDB].
func (n *NutsDB) Set(ctx context.Context, key []byte, val *object.Metadata) error {
	buf, err := n.codec.Marshal(val)
	if err != nil {
		return err
	}
	return n.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(n.bucket, key, buf, nutsdb.Persistent)
	})
}
