package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/conf"
	"github.com/omalloc/spancache/storage/bucket/disk"
	"github.com/omalloc/spancache/storage/bucket/memory"
	"github.com/omalloc/spancache/storage/indexdb"
	_ "github.com/omalloc/spancache/storage/indexdb/nutsdb"
	_ "github.com/omalloc/spancache/storage/indexdb/pebble"
	_ "github.com/omalloc/spancache/storage/indexdb/redis"
)

const (
	defaultDriver = "native"
	defaultDBType = "pebble"
	defaultDBPath = ".indexdb"
)

// implements storage.Bucket map.
var bucketMap = map[string]func(opt *storage.BucketConfig) (storage.Bucket, error){
	"native": disk.New,   // disk is an alias of native
	"disk":   disk.New,
	"memory": memory.New, // in-memory vfs. restart as lost. @ storage.TypeInMemory
}

func NewBucket(opt *storage.BucketConfig) (storage.Bucket, error) {
	factory, exist := bucketMap[opt.Driver]
	if !exist {
		return nil, fmt.Errorf("bucket driver %q not found", opt.Driver)
	}
	return factory(opt)
}

func mergeConfig(global *conf.Storage, bucket *conf.Bucket) *storage.BucketConfig {
	// copied from conf bucket.
	copied := &storage.BucketConfig{
		Path:         bucket.Path,
		Driver:       bucket.Driver,
		Type:         bucket.Type,
		Weight:       bucket.Weight,
		HighPercent:  bucket.HighPercent,
		MaxSizeBytes: bucket.MaxSizeBytes,
		Options:      bucket.Options,
	}

	if copied.Driver == "" {
		copied.Driver = global.Driver
	}
	if copied.Driver == "" {
		copied.Driver = defaultDriver
	}
	if copied.Type == "" || copied.Type == storage.TypeWarm {
		copied.Type = storage.TypeNormal
	}
	if copied.Driver == "memory" {
		copied.Type = storage.TypeInMemory
	}
	return copied
}

// newIndexDB opens the metadata index described by config. Without a path or
// bucket to anchor it the index lives in memory.
func newIndexDB(config *conf.Storage) (storage.IndexDB, error) {
	dbType := config.DBType
	if dbType == "" {
		dbType = defaultDBType
	}

	dbPath := config.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	if dbPath != indexdb.TypeInMemory && !filepath.IsAbs(dbPath) {
		anchor := ""
		for _, b := range config.Buckets {
			if b.Driver != "memory" && b.Path != "" {
				anchor = b.Path
				break
			}
		}
		if anchor == "" {
			dbPath = indexdb.TypeInMemory
		} else {
			dbPath = filepath.Join(anchor, dbPath)
		}
	}

	return indexdb.Create(dbType, indexdb.NewOption(
		dbPath,
		indexdb.WithCodec(config.Codec),
		indexdb.WithDBConfig(config.DBConfig),
	))
}

var errNoBucket = errors.New("no bucket configured")
