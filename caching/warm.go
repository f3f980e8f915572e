package caching

import (
	"context"
	"errors"
	"io"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/upstream"
)

// ProgressFunc reports warming progress: the requested length (LengthUnset
// while unknown), the bytes cached before warming started and the bytes
// cached by this call so far.
type ProgressFunc func(requested, cached, newlyCached int64)

// WarmResult summarizes a Warm call.
type WarmResult struct {
	Requested   int64
	Cached      int64
	NewlyCached int64
}

// Warm reads spec through ds and discards the bytes so the range ends up in
// the cache. Already cached segments are skipped without touching upstream,
// and ranges another session is filling are waited for.
// ds must be created with WithCacheWriter and not be open.
func Warm(ctx context.Context, store storage.CacheStore, ds *DataSource, spec upstream.DataSpec, progress ProgressFunc) (*WarmResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	key := ds.CacheKey(spec)
	res := &WarmResult{Requested: spec.Length}

	if spec.Unbounded() {
		md, err := store.Metadata(ctx, key)
		if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
			return nil, &CacheError{Op: "metadata", Key: key, Err: err}
		}
		if md.Length != storage.LengthUnset {
			if md.Length <= spec.Position {
				return nil, ErrPositionOutOfRange
			}
			res.Requested = md.Length - spec.Position
		}
	}

	res.Cached = store.CachedBytes(ctx, key, spec.Position, res.Requested)
	report := func() {
		if progress != nil {
			progress(res.Requested, res.Cached, res.NewlyCached)
		}
	}
	report()

	// length still unknown, a single pass discovers it.
	if res.Requested == upstream.LengthUnset {
		n, err := readThrough(ctx, ds, spec)
		res.NewlyCached = store.CachedBytes(ctx, key, spec.Position, upstream.LengthUnset) - res.Cached
		if err == nil {
			res.Requested = n
		}
		report()
		return res, err
	}

	position := spec.Position
	end := spec.Position + res.Requested
	for position < end {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		seg, err := store.AcquireSegment(ctx, key, position, end-position, false)
		if err == nil && seg == nil {
			// another session is filling it, wait instead of fetching it twice.
			seg, err = store.AcquireSegment(ctx, key, position, end-position, true)
		}
		if err != nil {
			var ie *storage.InterruptedError
			if errors.As(err, &ie) {
				return res, err
			}
			return res, &CacheError{Op: "acquire", Key: key, Err: err}
		}

		if seg.Cached {
			position = min(seg.End(), end)
			continue
		}

		length := end - position
		if !seg.IsOpenEnded() {
			length = min(seg.Length, length)
		}
		store.ReleaseHole(seg)

		n, err := readThrough(ctx, ds, spec.WithRange(position, length))
		position += n
		res.NewlyCached = store.CachedBytes(ctx, key, spec.Position, res.Requested) - res.Cached
		report()
		if err != nil {
			return res, err
		}
		if n == 0 {
			break
		}
	}
	return res, nil
}

func readThrough(ctx context.Context, ds *DataSource, spec upstream.DataSpec) (int64, error) {
	if _, err := ds.Open(ctx, spec); err != nil {
		_ = ds.Close()
		return 0, err
	}

	n, err := io.Copy(io.Discard, ds)
	return n, errors.Join(err, ds.Close())
}
