package caching_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/caching"
)

func TestWarmSkipsCachedSpans(t *testing.T) {
	store := newStore(t)
	up := &fakeUpstream{data: payload(1000)}
	ctx := context.Background()

	ds := caching.New(store, up.factory(), caching.WithCacheWriter(0))
	readRange(t, ds, 200, 200)
	require.Equal(t, int32(1), up.opens.Load())

	var calls int
	res, err := caching.Warm(ctx, store, ds, upstream.NewDataSpec(locator, 0, 1000), func(requested, cached, newlyCached int64) {
		calls++
		assert.Equal(t, int64(1000), requested)
		assert.Equal(t, int64(200), cached)
	})
	require.NoError(t, err)
	assert.Equal(t, &caching.WarmResult{Requested: 1000, Cached: 200, NewlyCached: 800}, res)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int32(3), up.opens.Load())

	res, err = caching.Warm(ctx, store, ds, upstream.NewDataSpec(locator, 0, 1000), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Cached)
	assert.Equal(t, int64(0), res.NewlyCached)
	assert.Equal(t, int32(3), up.opens.Load())
}

func TestWarmDiscoversLength(t *testing.T) {
	store := newStore(t)
	up := &fakeUpstream{data: payload(750), unknownLength: true}

	ds := caching.New(store, up.factory(), caching.WithCacheWriter(0))
	res, err := caching.Warm(context.Background(), store, ds, upstream.NewDataSpec(locator, 0, upstream.LengthUnset), nil)
	require.NoError(t, err)
	assert.Equal(t, &caching.WarmResult{Requested: 750, Cached: 0, NewlyCached: 750}, res)

	// known now
	res, err = caching.Warm(context.Background(), store, ds, upstream.NewDataSpec(locator, 0, upstream.LengthUnset), nil)
	require.NoError(t, err)
	assert.Equal(t, &caching.WarmResult{Requested: 750, Cached: 750, NewlyCached: 0}, res)
	assert.Equal(t, int32(1), up.opens.Load())
}

func TestWarmWaitsForLockedRange(t *testing.T) {
	store := newStore(t)
	up := &fakeUpstream{data: payload(300)}
	ctx := context.Background()

	ds := caching.New(store, up.factory(), caching.WithCacheWriter(0))
	key := ds.CacheKey(upstream.NewDataSpec(locator, 0, 300))

	hole, err := store.AcquireSegment(ctx, key, 100, 100, false)
	require.NoError(t, err)
	require.NotNil(t, hole)

	var g errgroup.Group
	g.Go(func() error {
		time.Sleep(50 * time.Millisecond)
		defer store.ReleaseHole(hole)
		f, err := store.StartFile(ctx, key, 100, 100)
		if err != nil {
			return err
		}
		if _, err := f.Write(up.data[100:200]); err != nil {
			return err
		}
		return f.Commit()
	})

	_, err = caching.Warm(ctx, store, ds, upstream.NewDataSpec(locator, 0, 300), nil)
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	// only the two free ranges went upstream.
	assert.Equal(t, int32(2), up.opens.Load())
	assert.Equal(t, int64(300), store.CachedBytes(ctx, key, 0, 300))
}
