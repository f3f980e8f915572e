package caching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/contrib/log"
)

const positionNever int64 = math.MaxInt64

// DataSource serves byte ranges of a resource from a cache store, reading
// missing bytes from an upstream transport and optionally writing them back.
//
// A DataSource runs one session at a time: Open, any number of Read, Close.
// It is not safe for concurrent use. Sessions on different DataSources may
// share one store.
type DataSource struct {
	store        storage.CacheStore
	newTransport upstream.Factory
	opts         *options

	transport upstream.Transport
	log       *log.Helper

	ctx      context.Context
	opened   bool
	spec     upstream.DataSpec // request with its key attached
	locator  string            // effective locator, the stored redirect when present
	resolved string

	readPosition       int64
	bytesRemaining     int64
	checkCachePosition int64

	current            source
	currentLengthUnset bool
	currentHole        *storage.Segment
	switches           int

	ignoreCache    bool
	seenCacheError bool
	cachedBytes    int64
}

// New returns a data source reading through store. newTransport is called
// once, on the first Open.
func New(store storage.CacheStore, newTransport upstream.Factory, opts ...Option) *DataSource {
	o := newOptions(opts...)
	return &DataSource{
		store:        store,
		newTransport: newTransport,
		opts:         o,
		log:          log.NewHelper(o.logger),
	}
}

// CacheKey returns the key spec is cached under.
func (d *DataSource) CacheKey(spec upstream.DataSpec) string {
	return d.opts.keyDeriver(&spec)
}

// Open opens spec and returns the number of bytes that can be read, or
// upstream.LengthUnset when it is unknown.
func (d *DataSource) Open(ctx context.Context, spec upstream.DataSpec) (int64, error) {
	if d.opened {
		return 0, ErrAlreadyOpened
	}
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	if d.transport == nil {
		t, err := d.newTransport()
		if err != nil {
			return 0, fmt.Errorf("create transport: %w", err)
		}
		d.transport = t
	}

	spec.Key = d.opts.keyDeriver(&spec)

	d.ctx = ctx
	d.opened = true
	d.spec = spec
	d.readPosition = spec.Position
	d.switches = 0
	d.log = log.NewHelper(log.With(d.opts.logger, "session", uuid.NewString(), "key", spec.Key))

	md, err := d.store.Metadata(ctx, spec.Key)
	if err != nil {
		d.markCacheError(&CacheError{Op: "metadata", Key: spec.Key, Err: err})
		md = storage.ContentMetadata{Length: storage.LengthUnset}
	}

	d.locator = spec.Locator
	if md.Redirect != "" {
		d.locator = md.Redirect
	}
	d.resolved = d.locator

	d.ignoreCache = false
	if reason, ok := d.shouldIgnoreCache(spec); ok {
		d.bypass(reason)
	}

	if !spec.Unbounded() || d.ignoreCache {
		d.bytesRemaining = spec.Length
	} else {
		d.bytesRemaining = md.Length
		if d.bytesRemaining != upstream.LengthUnset {
			d.bytesRemaining -= spec.Position
			if d.bytesRemaining <= 0 {
				d.opened = false
				return 0, ErrPositionOutOfRange
			}
		}
	}

	if err := d.openNextSource(false); err != nil {
		d.handleBeforeReturn(err)
		_ = d.closeCurrentSource()
		d.opened = false
		return 0, err
	}

	if d.log.Enabled(log.LevelDebug) {
		d.log.Debugf("open %s at %d, remaining %d via %s", d.locator, d.readPosition, d.bytesRemaining, d.currentKind())
	}
	return d.bytesRemaining, nil
}

func (d *DataSource) shouldIgnoreCache(spec upstream.DataSpec) (BypassReason, bool) {
	if d.opts.ignoreCacheOnError && d.seenCacheError {
		return BypassError, true
	}
	if d.opts.ignoreCacheForUnsetLength && spec.Unbounded() {
		return BypassUnsetLength, true
	}
	return "", false
}

func (d *DataSource) bypass(reason BypassReason) {
	d.ignoreCache = true
	d.log.Infof("bypass cache: %s", reason)
	if d.opts.observer != nil {
		d.opts.observer.OnCacheBypassed(d.spec.Key, reason)
	}
}

// Read reads up to len(p) bytes. It returns io.EOF once the range is done.
func (d *DataSource) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !d.opened {
		return 0, ErrNotOpened
	}
	if d.bytesRemaining == 0 {
		return 0, io.EOF
	}

	for {
		switch {
		case d.current == nil:
			// a previous read error closed the source
			if err := d.openNextSource(false); err != nil {
				return 0, d.failRead(err)
			}
		case d.readPosition >= d.checkCachePosition:
			if err := d.openNextSource(true); err != nil {
				return 0, d.failRead(err)
			}
		}

		if d.bytesRemaining != upstream.LengthUnset && int64(len(p)) > d.bytesRemaining {
			p = p[:d.bytesRemaining]
		}

		n, err := d.current.Read(p)
		if n > 0 {
			if d.currentKind() == sourceCache {
				d.cachedBytes += int64(n)
			}
			d.readPosition += int64(n)
			if d.bytesRemaining != upstream.LengthUnset {
				d.bytesRemaining -= int64(n)
			}
			d.switches = 0
			return n, nil
		}

		if err == nil {
			continue
		}

		if !errors.Is(err, io.EOF) {
			return 0, d.failRead(err)
		}

		if d.currentLengthUnset {
			d.setNoBytesRemainingAndMaybeStoreLength()
			return 0, io.EOF
		}

		if d.bytesRemaining > 0 || d.bytesRemaining == upstream.LengthUnset {
			// the source ended before its expected length, continue from
			// the same position with whatever covers it now.
			d.switches++
			if d.switches > d.opts.maxSourceSwitches {
				return 0, d.failRead(fmt.Errorf("%w: %d bytes remaining at %d after %d source switches",
					io.ErrUnexpectedEOF, d.bytesRemaining, d.readPosition, d.switches-1))
			}

			if err := d.closeCurrentSource(); err != nil {
				return 0, d.failRead(err)
			}
			if err := d.openNextSource(false); err != nil {
				if d.bytesRemaining == upstream.LengthUnset && errors.Is(err, ErrPositionOutOfRange) {
					// the last cached span ended at the end of the resource
					d.endOfResource()
					return 0, io.EOF
				}
				return 0, d.failRead(err)
			}
			continue
		}

		return 0, io.EOF
	}
}

// failRead records err and closes the current source, releasing its hole
// before the error reaches the caller.
func (d *DataSource) failRead(err error) error {
	d.handleBeforeReturn(err)
	if cerr := d.closeCurrentSource(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// endOfResource marks the end found past the last cached span. No source
// is open, so the length is stored whenever this session may write.
func (d *DataSource) endOfResource() {
	d.bytesRemaining = 0
	if d.opts.writer && !d.ignoreCache {
		d.applyMutation(storage.Mutation{}.SetLength(d.readPosition))
	}
}

// ResolvedLocator returns the locator the current session reads from, after
// stored or discovered redirects.
func (d *DataSource) ResolvedLocator() string {
	return d.resolved
}

// Close ends the session. The held hole, if any, is always released.
func (d *DataSource) Close() error {
	d.opened = false
	d.spec = upstream.DataSpec{}
	d.readPosition = 0
	d.notifyBytesRead()

	if err := d.closeCurrentSource(); err != nil {
		d.handleBeforeReturn(err)
		return err
	}
	return nil
}

// openNextSource selects the source covering readPosition and opens it. With
// checkCache set, a bare upstream read is only replaced by a cache-backed one.
func (d *DataSource) openNextSource(checkCache bool) error {
	if !d.ignoreCache && d.opts.ignoreCacheOnError && d.seenCacheError {
		d.bypass(BypassError)
	}

	key := d.spec.Key
	position := d.readPosition

	var seg *storage.Segment
	if !d.ignoreCache {
		var err error
		seg, err = d.store.AcquireSegment(d.ctx, key, position, d.bytesRemaining, d.opts.blockOnCache)
		if err != nil {
			var ie *storage.InterruptedError
			if errors.As(err, &ie) {
				return err
			}
			d.markCacheError(&CacheError{Op: "acquire", Key: key, Err: err})
			seg = nil
		}
	}

	var next source
	nextSpec := d.spec.WithLocator(d.locator)

	switch {
	case seg == nil:
		next = &upstreamSource{transport: d.transport}
		nextSpec = nextSpec.WithRange(position, d.bytesRemaining)
	case seg.Cached:
		length := seg.End() - position
		if d.bytesRemaining != upstream.LengthUnset {
			length = min(length, d.bytesRemaining)
		}
		next = newSpanSource(d.store, seg)
		nextSpec = nextSpec.WithRange(position, length)
	default:
		length := seg.Length
		if length == storage.LengthUnset {
			length = d.bytesRemaining
		} else if d.bytesRemaining != upstream.LengthUnset {
			length = min(length, d.bytesRemaining)
		}
		nextSpec = nextSpec.WithRange(position, length)

		if d.opts.writer {
			next = &teeSource{
				transport: d.transport,
				sink:      newCacheSink(d.ctx, d.store, key, d.opts.fragmentSize),
				onError:   d.markCacheError,
			}
		} else {
			d.store.ReleaseHole(seg)
			seg = nil
			next = &upstreamSource{transport: d.transport}
		}
	}

	d.checkCachePosition = positionNever
	if !d.ignoreCache && next.kind() == sourceUpstream {
		d.checkCachePosition = position + d.opts.lookAhead
	}

	if checkCache {
		if next.kind() == sourceUpstream {
			// keep reading the open upstream
			return nil
		}
		if err := d.closeCurrentSource(); err != nil {
			if seg != nil && seg.IsHole() {
				d.store.ReleaseHole(seg)
			}
			return err
		}
	}

	if seg != nil && seg.IsHole() {
		d.currentHole = seg
	}
	d.current = next
	d.currentLengthUnset = nextSpec.Unbounded()

	length, err := next.open(d.ctx, nextSpec)
	if err != nil {
		_ = d.closeCurrentSource()
		return err
	}

	var mutation storage.Mutation
	if d.currentLengthUnset && length != upstream.LengthUnset {
		d.bytesRemaining = length
		mutation = mutation.SetLength(d.readPosition + length)
	}

	if d.isReadingFromUpstream() {
		d.resolved = next.resolvedLocator()
		if d.resolved != d.spec.Locator {
			mutation = mutation.SetRedirect(d.resolved)
		} else if d.locator != d.spec.Locator {
			// the stored redirect is stale
			mutation = mutation.RemoveRedirect()
		}
	}

	if d.isWritingToCache() && !mutation.Empty() {
		d.applyMutation(mutation)
	}
	return nil
}

func (d *DataSource) setNoBytesRemainingAndMaybeStoreLength() {
	d.bytesRemaining = 0
	if d.isWritingToCache() {
		d.applyMutation(storage.Mutation{}.SetLength(d.readPosition))
	}
}

func (d *DataSource) applyMutation(m storage.Mutation) {
	if err := d.store.ApplyMutation(d.ctx, d.spec.Key, m); err != nil {
		d.markCacheError(&CacheError{Op: "mutate", Key: d.spec.Key, Err: err})
	}
}

// closeCurrentSource closes the open source and releases the held hole on
// every path.
func (d *DataSource) closeCurrentSource() error {
	if d.current == nil {
		return nil
	}

	defer func() {
		d.current = nil
		d.currentLengthUnset = false
		if d.currentHole != nil {
			d.store.ReleaseHole(d.currentHole)
			d.currentHole = nil
		}
	}()
	return d.current.Close()
}

func (d *DataSource) notifyBytesRead() {
	if d.opts.observer != nil && d.cachedBytes > 0 {
		d.opts.observer.OnCacheBytesRead(d.store.CacheSize(), d.cachedBytes)
	}
	d.cachedBytes = 0
}

func (d *DataSource) handleBeforeReturn(err error) {
	if d.currentKind() == sourceCache || IsCacheError(err) {
		d.seenCacheError = true
	}
}

func (d *DataSource) markCacheError(err error) {
	d.seenCacheError = true
	d.log.Warnf("cache error: %v", err)
}

func (d *DataSource) currentKind() sourceKind {
	if d.current == nil {
		return sourceNone
	}
	return d.current.kind()
}

func (d *DataSource) isReadingFromUpstream() bool {
	k := d.currentKind()
	return k == sourceUpstream || k == sourceWrite
}

func (d *DataSource) isWritingToCache() bool {
	return d.currentKind() == sourceWrite
}
