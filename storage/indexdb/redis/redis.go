package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/pkg/encoding"
	"github.com/omalloc/spancache/storage/indexdb"
)

var _ storage.IndexDB = (*RedisDB)(nil)

type dbOptions struct {
	Addr      string        `yaml:"addr"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
	ScanCount int64         `yaml:"scan_count"`
}

// RedisDB keeps the index in redis so several nodes sharing span buckets
// agree on content metadata.
type RedisDB struct {
	codec     encoding.Codec
	rdb       goredis.UniversalClient
	prefix    string
	scanCount int64
	owned     bool
}

func init() {
	indexdb.Register("redis", NewRedisDB)
}

// NewRedisDB connects to the server named by the addr option. The db path is
// used as the key prefix when key_prefix is not set.
func NewRedisDB(path string, option storage.Option) (storage.IndexDB, error) {
	opts := dbOptions{
		Addr:      "127.0.0.1:6379",
		Timeout:   3 * time.Second,
		ScanCount: 256,
	}
	if err := option.Unmarshal(&opts); err != nil {
		return nil, err
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "spancache:" + path + ":"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	db := New(rdb, option.Codec(), opts.KeyPrefix, opts.ScanCount)
	db.owned = true
	return db, nil
}

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb goredis.UniversalClient, codec encoding.Codec, prefix string, scanCount int64) *RedisDB {
	if scanCount <= 0 {
		scanCount = 256
	}
	return &RedisDB{
		codec:     codec,
		rdb:       rdb,
		prefix:    prefix,
		scanCount: scanCount,
	}
}

func (r *RedisDB) key(k []byte) string {
	return r.prefix + string(k)
}

// Close implements [storage.IndexDB].
func (r *RedisDB) Close() error {
	if !r.owned {
		return nil
	}
	if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

// Get implements [storage.IndexDB].
func (r *RedisDB) Get(ctx context.Context, key []byte) (*object.Metadata, error) {
	buf, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	meta := &object.Metadata{}
	if err := r.codec.Unmarshal(buf, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Set implements [storage.IndexDB].
func (r *RedisDB) Set(ctx context.Context, key []byte, val *object.Metadata) error {
	buf, err := r.codec.Marshal(val)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(key), buf, 0).Err()
}

// Exist implements [storage.IndexDB].
func (r *RedisDB) Exist(ctx context.Context, key []byte) bool {
	n, err := r.rdb.Exists(ctx, r.key(key)).Result()
	return err == nil && n > 0
}

// Delete implements [storage.IndexDB].
func (r *RedisDB) Delete(ctx context.Context, key []byte) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}

// Iterate implements [storage.IndexDB].
func (r *RedisDB) Iterate(ctx context.Context, prefix []byte, f storage.IterateFunc) error {
	iter := r.rdb.Scan(ctx, 0, escapeGlob(r.key(prefix))+"*", r.scanCount).Iterator()
	for iter.Next(ctx) {
		name := iter.Val()
		buf, err := r.rdb.Get(ctx, name).Bytes()
		if err != nil {
			// removed between SCAN and GET
			continue
		}

		meta := &object.Metadata{}
		if err := r.codec.Unmarshal(buf, meta); err != nil {
			continue
		}
		if !f([]byte(name[len(r.prefix):]), meta) {
			return nil
		}
	}
	return iter.Err()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
