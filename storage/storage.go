package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/conf"
	"github.com/omalloc/spancache/contrib/log"
	"github.com/omalloc/spancache/storage/selector"
	"github.com/omalloc/spancache/storage/sharedkv"
)

var _ storage.CacheStore = (*nativeStorage)(nil)

const usageKeyPrefix = "usage/"

// nativeStorage keeps span files in buckets, span lists and content metadata
// in the indexdb, and arbitrates hole ownership in memory.
type nativeStorage struct {
	mu      sync.Mutex
	closed  bool
	log     *log.Helper
	changed chan struct{} // closed and replaced whenever a hole is released or a span committed

	selector storage.Selector
	buckets  map[string]storage.Bucket
	indexdb  storage.IndexDB
	sharedkv storage.SharedKV

	contents map[string]*content
	holes    map[storage.Handle]*hole
	next     uint64
	size     atomic.Int64
}

func New(config *conf.Storage, logger log.Logger) (storage.CacheStore, error) {
	if config == nil || len(config.Buckets) == 0 {
		return nil, errNoBucket
	}

	n := &nativeStorage{
		log:      log.NewHelper(logger),
		changed:  make(chan struct{}),
		buckets:  make(map[string]storage.Bucket, len(config.Buckets)),
		contents: make(map[string]*content),
		holes:    make(map[storage.Handle]*hole),
	}

	if err := n.reinit(config); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}

func (n *nativeStorage) reinit(config *conf.Storage) error {
	ordered := make([]storage.Bucket, 0, len(config.Buckets))
	for _, c := range config.Buckets {
		bucket, err := NewBucket(mergeConfig(config, c))
		if err != nil {
			return err
		}
		if _, dup := n.buckets[bucket.ID()]; dup {
			_ = bucket.Close()
			return fmt.Errorf("duplicate bucket %s", bucket.ID())
		}
		n.buckets[bucket.ID()] = bucket
		ordered = append(ordered, bucket)
	}

	n.selector = selector.New(ordered, config.SelectionPolicy)
	if n.selector == nil {
		return errors.New("bucket selector unavailable")
	}

	db, err := newIndexDB(config)
	if err != nil {
		return fmt.Errorf("open indexdb: %w", err)
	}
	n.indexdb = db

	if config.SharedKVPath != "" {
		kv, err := sharedkv.NewStoreSharedKV(config.SharedKVPath)
		if err != nil {
			return fmt.Errorf("open sharedkv: %w", err)
		}
		n.sharedkv = kv
	} else {
		n.sharedkv = sharedkv.NewMemSharedKV()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return n.loadIndex(ctx)
}

// loadIndex rebuilds the span arena from the persisted index. Spans whose
// bucket is no longer configured are dropped.
func (n *nativeStorage) loadIndex(ctx context.Context) error {
	if err := n.sharedkv.DropPrefix(ctx, []byte(usageKeyPrefix)); err != nil {
		n.log.Warnf("failed to drop prefix key `%s` counter: %s", usageKeyPrefix, err)
	}

	var objects, dropped int
	err := n.indexdb.Iterate(ctx, nil, func(key []byte, meta *object.Metadata) bool {
		c := newContent(meta.Key)
		c.meta.Length = meta.Length
		c.meta.Redirect = meta.Redirect
		c.createdAt = meta.CreatedAt

		meta.SortSpans()
		for _, sp := range meta.Spans {
			if _, ok := n.buckets[sp.Bucket]; !ok || sp.Length <= 0 {
				dropped++
				continue
			}
			if !c.insertSpan(sp) {
				dropped++
				continue
			}
			n.size.Add(sp.Length)
			n.incrUsage(ctx, sp.Bucket, sp.Length)
		}
		n.contents[meta.Key] = c
		objects++
		return true
	})
	if err != nil {
		return err
	}

	n.log.Infof("loaded %d objects from indexdb, %d bytes cached, %d spans dropped", objects, n.size.Load(), dropped)
	return nil
}

// notify wakes every blocked acquirer. Caller holds n.mu.
func (n *nativeStorage) notify() {
	close(n.changed)
	n.changed = make(chan struct{})
}

func (n *nativeStorage) content(key string) *content {
	c, ok := n.contents[key]
	if !ok {
		c = newContent(key)
		n.contents[key] = c
	}
	return c
}

// AcquireSegment implements storage.CacheStore.
func (n *nativeStorage) AcquireSegment(ctx context.Context, key string, position, length int64, blocking bool) (*storage.Segment, error) {
	for {
		n.mu.Lock()
		if n.closed {
			n.mu.Unlock()
			return nil, storage.ErrStoreClosed
		}

		c := n.content(key)
		if sp, ok := c.spanAt(position); ok {
			n.mu.Unlock()
			return &storage.Segment{
				Key:      key,
				Position: sp.Position,
				Length:   sp.Length,
				Cached:   true,
			}, nil
		}

		end := c.nextSpanStart(position)
		if next := c.nextHoleStart(position); next != storage.LengthUnset && (end == storage.LengthUnset || next < end) {
			end = next
		}
		if length != storage.LengthUnset && (end == storage.LengthUnset || position+length < end) {
			end = position + length
		}

		if !c.locked(position, end) {
			n.next++
			h := &hole{handle: storage.Handle(n.next), key: key, position: position, end: end}
			n.holes[h.handle] = h
			c.holes[h.handle] = h
			n.mu.Unlock()

			seg := &storage.Segment{
				Key:      key,
				Position: position,
				Length:   storage.LengthUnset,
				Handle:   h.handle,
			}
			if end != storage.LengthUnset {
				seg.Length = end - position
			}
			return seg, nil
		}

		if !blocking {
			n.mu.Unlock()
			return nil, nil
		}

		wait := n.changed
		n.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, &storage.InterruptedError{Key: key, Position: position, Err: ctx.Err()}
		case <-wait:
		}
	}
}

// ReleaseHole implements storage.CacheStore.
func (n *nativeStorage) ReleaseHole(seg *storage.Segment) {
	if seg == nil || seg.Cached {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	h, ok := n.holes[seg.Handle]
	if !ok {
		return
	}
	delete(n.holes, seg.Handle)
	if c, ok := n.contents[h.key]; ok {
		delete(c.holes, seg.Handle)
		if c.empty() {
			delete(n.contents, h.key)
		}
	}
	n.notify()
}

// OpenSegment implements storage.CacheStore.
func (n *nativeStorage) OpenSegment(ctx context.Context, seg *storage.Segment, offset int64) (io.ReadCloser, error) {
	if seg == nil || !seg.Cached {
		return nil, storage.ErrSegmentNotFound
	}
	if offset < 0 || offset > seg.Length {
		return nil, fmt.Errorf("offset %d out of segment %s", offset, seg)
	}

	n.mu.Lock()
	c, ok := n.contents[seg.Key]
	var sp object.Span
	if ok {
		sp, ok = c.spanAt(seg.Position)
	}
	n.mu.Unlock()
	if !ok || sp.Position != seg.Position {
		return nil, storage.ErrSegmentNotFound
	}

	bucket, ok := n.buckets[sp.Bucket]
	if !ok {
		return nil, storage.ErrSegmentNotFound
	}

	f, err := bucket.ReadSpanFile(ctx, object.NewID(seg.Key), sp.Position)
	if err != nil {
		return nil, err
	}
	return storage.SectionReadCloser(f, offset, sp.Length-offset), nil
}

// StartFile implements storage.CacheStore.
func (n *nativeStorage) StartFile(ctx context.Context, key string, position, maxLength int64) (storage.SpanFile, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, storage.ErrStoreClosed
	}
	c, ok := n.contents[key]
	if !ok || !c.holds(position) {
		n.mu.Unlock()
		return nil, storage.ErrNotLocked
	}
	n.mu.Unlock()

	id := object.NewID(key)
	bucket := n.selector.Select(ctx, id)
	if bucket == nil {
		return nil, errors.New("no bucket accepts new spans")
	}

	f, wpath, err := bucket.WriteSpanFile(ctx, id, position)
	if err != nil {
		return nil, err
	}

	if log.Enabled(log.LevelDebug) {
		n.log.Debugf("start span file %s at %d, max %d", wpath, position, maxLength)
	}

	return &spanFile{
		store:     n,
		id:        id,
		bucket:    bucket,
		file:      f,
		position:  position,
		maxLength: maxLength,
	}, nil
}

// commit publishes a written span file. Caller must have closed the file.
func (n *nativeStorage) commit(ctx context.Context, id *object.ID, bucket storage.Bucket, position, length int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return storage.ErrStoreClosed
	}

	c := n.content(id.Key())
	sp := object.Span{Position: position, Length: length, Bucket: bucket.ID()}
	if !c.insertSpan(sp) {
		return storage.ErrSpanOverlap
	}

	if err := n.persist(ctx, c); err != nil {
		c.removeSpan(position)
		return err
	}

	n.size.Add(length)
	n.incrUsage(ctx, bucket.ID(), length)
	n.notify()
	return nil
}

// persist writes the index record of c. Caller holds n.mu.
func (n *nativeStorage) persist(ctx context.Context, c *content) error {
	now := time.Now().Unix()
	if c.createdAt == 0 {
		c.createdAt = now
	}
	return n.indexdb.Set(ctx, c.id.Bytes(), c.metadata(now))
}

func (n *nativeStorage) incrUsage(ctx context.Context, bucketID string, delta int64) {
	key := []byte(usageKeyPrefix + bucketID)
	var err error
	if delta >= 0 {
		_, err = n.sharedkv.Incr(ctx, key, uint64(delta))
	} else {
		_, err = n.sharedkv.Decr(ctx, key, uint64(-delta))
	}
	if err != nil {
		n.log.Warnf("update usage counter of %s failed: %v", bucketID, err)
	}
}

// Metadata implements storage.CacheStore. Unknown keys report LengthUnset.
func (n *nativeStorage) Metadata(ctx context.Context, key string) (storage.ContentMetadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return storage.ContentMetadata{Length: storage.LengthUnset}, storage.ErrStoreClosed
	}
	c, ok := n.contents[key]
	if !ok {
		return storage.ContentMetadata{Length: storage.LengthUnset}, nil
	}
	return c.meta, nil
}

// ApplyMutation implements storage.CacheStore.
func (n *nativeStorage) ApplyMutation(ctx context.Context, key string, m storage.Mutation) error {
	if m.Empty() {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return storage.ErrStoreClosed
	}

	c := n.content(key)
	before := c.meta
	if !m.Apply(&c.meta) {
		return nil
	}
	if err := n.persist(ctx, c); err != nil {
		c.meta = before
		return err
	}
	return nil
}

// CachedBytes implements storage.CacheStore.
func (n *nativeStorage) CachedBytes(ctx context.Context, key string, position, length int64) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	c, ok := n.contents[key]
	if !ok {
		return 0
	}

	end := storage.LengthUnset
	if length != storage.LengthUnset {
		end = position + length
	} else if c.meta.Length != storage.LengthUnset {
		end = c.meta.Length
	}
	return c.cachedBytes(position, end)
}

// CacheSize implements storage.CacheStore.
func (n *nativeStorage) CacheSize() int64 {
	return n.size.Load()
}

// Remove implements storage.CacheStore.
func (n *nativeStorage) Remove(ctx context.Context, key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return storage.ErrStoreClosed
	}

	c, ok := n.contents[key]
	if !ok {
		return storage.ErrKeyNotFound
	}
	if len(c.holes) > 0 {
		return storage.ErrRangeLocked
	}

	var errs []error
	for _, sp := range c.spans {
		if bucket, ok := n.buckets[sp.Bucket]; ok {
			if err := bucket.RemoveSpanFile(ctx, c.id, sp.Position); err != nil {
				errs = append(errs, err)
			}
		}
		n.size.Add(-sp.Length)
		n.incrUsage(ctx, sp.Bucket, -sp.Length)
	}
	if err := n.indexdb.Delete(ctx, c.id.Bytes()); err != nil {
		errs = append(errs, err)
	}

	delete(n.contents, key)
	n.notify()
	return errors.Join(errs...)
}

// Close implements storage.CacheStore.
func (n *nativeStorage) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	n.notify()

	var errs []error
	for _, bucket := range n.buckets {
		errs = append(errs, bucket.Close())
	}
	if n.indexdb != nil {
		errs = append(errs, n.indexdb.Close())
	}
	if n.sharedkv != nil {
		errs = append(errs, n.sharedkv.Close())
	}
	return errors.Join(errs...)
}
