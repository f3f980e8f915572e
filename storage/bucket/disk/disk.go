package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/contrib/log"
)

var _ storage.Bucket = (*diskBucket)(nil)

const (
	defaultWeight      = 100
	defaultHighPercent = 90.0
	usageCheckInterval = 5 * time.Second
)

// usageFunc reports the used percent of the filesystem holding path.
type usageFunc func(path string) (float64, error)

type diskBucket struct {
	path        string
	driver      string
	storeType   string
	weight      int
	highPercent float64
	fileFlag    int
	fileMode    fs.FileMode

	usage     usageFunc
	usageMu   sync.Mutex
	lastCheck time.Time
	allow     atomic.Bool
	bad       atomic.Bool
}

func New(opt *storage.BucketConfig) (storage.Bucket, error) {
	return newBucket(opt, diskUsage)
}

func newBucket(opt *storage.BucketConfig, usage usageFunc) (*diskBucket, error) {
	if opt.Path == "" {
		return nil, errors.New("disk bucket requires a path")
	}

	bucket := &diskBucket{
		path:        opt.Path,
		driver:      opt.Driver,
		storeType:   opt.Type,
		weight:      opt.Weight,
		highPercent: opt.HighPercent,
		fileFlag:    os.O_RDONLY,
		fileMode:    fs.FileMode(0o755),
		usage:       usage,
	}
	if bucket.weight <= 0 {
		bucket.weight = defaultWeight
	}
	if bucket.highPercent <= 0 || bucket.highPercent > 100 {
		bucket.highPercent = defaultHighPercent
	}
	if bucket.storeType == "" {
		bucket.storeType = storage.TypeNormal
	}

	// hard code of check os.
	if runtime.GOOS == "linux" {
		bucket.fileFlag |= 0o1000000 // O_NOATIME
	}

	if err := os.MkdirAll(bucket.path, bucket.fileMode); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create bucket dir %s: %w", bucket.path, err)
	}

	bucket.allow.Store(true)
	bucket.checkUsage(true)
	return bucket, nil
}

func diskUsage(path string) (float64, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return stat.UsedPercent, nil
}

func (d *diskBucket) checkUsage(force bool) {
	d.usageMu.Lock()
	defer d.usageMu.Unlock()

	if !force && time.Since(d.lastCheck) < usageCheckInterval {
		return
	}
	d.lastCheck = time.Now()

	percent, err := d.usage(d.path)
	if err != nil {
		log.Warnf("bucket %s usage check failed: %v", d.path, err)
		d.bad.Store(true)
		return
	}
	d.bad.Store(false)

	allow := percent < d.highPercent
	if d.allow.Swap(allow) != allow && !allow {
		log.Warnf("bucket %s is %.1f%% full, stop writing new spans", d.path, percent)
	}
}

// ID implements storage.Bucket.
func (d *diskBucket) ID() string {
	return d.path
}

// Weight implements storage.Bucket.
func (d *diskBucket) Weight() int {
	return d.weight
}

// StoreType implements storage.Bucket.
func (d *diskBucket) StoreType() string {
	return d.storeType
}

// UseAllow implements storage.Bucket.
func (d *diskBucket) UseAllow() bool {
	d.checkUsage(false)
	return d.allow.Load()
}

// HasBad implements storage.Bucket.
func (d *diskBucket) HasBad() bool {
	return d.bad.Load()
}

// WriteSpanFile implements storage.Bucket. Bytes land in a temporary file
// that is renamed into place on Close.
func (d *diskBucket) WriteSpanFile(ctx context.Context, id *object.ID, position int64) (storage.File, string, error) {
	wpath := id.WPathSpan(d.path, position)
	if err := os.MkdirAll(filepath.Dir(wpath), d.fileMode); err != nil {
		return nil, wpath, err
	}

	tmpPath := wpath + time.Now().Format(".tmp20060102150405.000000")
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, d.fileMode)
	if err != nil {
		return nil, wpath, fmt.Errorf("bucket open span file %s@%d failed: %w", id.Key(), position, err)
	}

	return &renameOnClose{File: f, tmpPath: tmpPath, wpath: wpath}, wpath, nil
}

// ReadSpanFile implements storage.Bucket.
func (d *diskBucket) ReadSpanFile(ctx context.Context, id *object.ID, position int64) (storage.File, error) {
	f, err := os.OpenFile(id.WPathSpan(d.path, position), d.fileFlag, d.fileMode)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrSegmentNotFound
		}
		return nil, err
	}
	return f, nil
}

// RemoveSpanFile implements storage.Bucket.
func (d *diskBucket) RemoveSpanFile(ctx context.Context, id *object.ID, position int64) error {
	err := os.Remove(id.WPathSpan(d.path, position))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close implements storage.Bucket.
func (d *diskBucket) Close() error {
	return nil
}

type renameOnClose struct {
	*os.File
	tmpPath string
	wpath   string
	once    sync.Once
	err     error
}

func (r *renameOnClose) Name() string {
	return r.wpath
}

func (r *renameOnClose) Close() error {
	r.once.Do(func() {
		if err := r.File.Close(); err != nil {
			_ = os.Remove(r.tmpPath)
			r.err = err
			return
		}
		r.err = os.Rename(r.tmpPath, r.wpath)
	})
	return r.err
}
