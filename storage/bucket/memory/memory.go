package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/dustin/go-humanize"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/contrib/log"
)

var _ storage.Bucket = (*memoryBucket)(nil)

const (
	defaultPath    = "/inmemory"
	defaultMaxSize = 100 * humanize.MiByte
)

// memoryBucket keeps span files in a memory-backed vfs. Restart loses them.
type memoryBucket struct {
	fs        vfs.FS
	path      string
	driver    string
	storeType string
	weight    int
	fileMode  fs.FileMode
	maxSize   uint64
	used      atomic.Int64
}

func New(config *storage.BucketConfig) (storage.Bucket, error) {
	mb := &memoryBucket{
		fs:        vfs.NewMem(),
		path:      config.Path,
		driver:    config.Driver,
		storeType: storage.TypeInMemory,
		weight:    config.Weight,
		fileMode:  fs.FileMode(0o755),
		maxSize:   config.MaxSizeBytes,
	}
	if mb.path == "" {
		mb.path = defaultPath
	}
	if mb.weight <= 0 {
		mb.weight = 100
	}
	if mb.maxSize == 0 {
		mb.maxSize = defaultMaxSize
	}

	log.Debugf("memory bucket %s capacity %s", mb.path, humanize.IBytes(mb.maxSize))
	return mb, nil
}

// ID implements [storage.Bucket].
func (m *memoryBucket) ID() string {
	return m.path
}

// Weight implements [storage.Bucket].
func (m *memoryBucket) Weight() int {
	return m.weight
}

// StoreType implements [storage.Bucket].
func (m *memoryBucket) StoreType() string {
	return m.storeType
}

// UseAllow implements [storage.Bucket].
func (m *memoryBucket) UseAllow() bool {
	return uint64(m.used.Load()) < m.maxSize
}

// HasBad implements [storage.Bucket].
func (m *memoryBucket) HasBad() bool {
	return false
}

// WriteSpanFile implements [storage.Bucket].
func (m *memoryBucket) WriteSpanFile(ctx context.Context, id *object.ID, position int64) (storage.File, string, error) {
	wpath := id.WPathSpan(m.path, position)
	if err := m.fs.MkdirAll(filepath.Dir(wpath), m.fileMode); err != nil {
		return nil, wpath, err
	}

	f, err := m.fs.Create(wpath, vfs.WriteCategoryUnspecified)
	if err != nil {
		return nil, wpath, fmt.Errorf("memory bucket create span file %s@%d failed: %w", id.Key(), position, err)
	}
	return &countingFile{File: storage.WrapVFSFile(f, wpath), used: &m.used}, wpath, nil
}

// ReadSpanFile implements [storage.Bucket].
func (m *memoryBucket) ReadSpanFile(ctx context.Context, id *object.ID, position int64) (storage.File, error) {
	wpath := id.WPathSpan(m.path, position)
	f, err := m.fs.Open(wpath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrSegmentNotFound
		}
		return nil, err
	}
	return storage.WrapVFSFile(f, wpath), nil
}

// RemoveSpanFile implements [storage.Bucket].
func (m *memoryBucket) RemoveSpanFile(ctx context.Context, id *object.ID, position int64) error {
	wpath := id.WPathSpan(m.path, position)
	if st, err := m.fs.Stat(wpath); err == nil {
		m.used.Add(-st.Size())
	}
	if err := m.fs.Remove(wpath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close implements [storage.Bucket].
func (m *memoryBucket) Close() error {
	return nil
}

type countingFile struct {
	storage.File
	used *atomic.Int64
}

func (c *countingFile) Write(p []byte) (int, error) {
	n, err := c.File.Write(p)
	c.used.Add(int64(n))
	return n, err
}
