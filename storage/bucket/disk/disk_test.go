package disk

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storagev1 "github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
)

func newTestBucket(t *testing.T, usage usageFunc) *diskBucket {
	t.Helper()

	bucket, err := newBucket(&storagev1.BucketConfig{
		Path:        t.TempDir(),
		Driver:      "native",
		Type:        storagev1.TypeNormal,
		HighPercent: 80,
	}, usage)
	require.NoError(t, err)
	return bucket
}

func fixedUsage(percent float64) usageFunc {
	return func(string) (float64, error) { return percent, nil }
}

func TestSpanFileRoundTrip(t *testing.T) {
	bucket := newTestBucket(t, fixedUsage(10))
	ctx := context.Background()
	id := object.NewID("http://www.example.com/path/to/1M.bin")

	_, err := bucket.ReadSpanFile(ctx, id, 0)
	assert.ErrorIs(t, err, storagev1.ErrSegmentNotFound)

	f, wpath, err := bucket.WriteSpanFile(ctx, id, 4096)
	require.NoError(t, err)
	assert.Equal(t, id.WPathSpan(bucket.ID(), 4096), wpath)

	_, err = f.Write([]byte("hello spans"))
	require.NoError(t, err)

	// not visible before close
	_, err = os.Stat(wpath)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	require.NoError(t, f.Close())

	r, err := bucket.ReadSpanFile(ctx, id, 4096)
	require.NoError(t, err)
	buf, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello spans", string(buf))
	require.NoError(t, r.Close())

	require.NoError(t, bucket.RemoveSpanFile(ctx, id, 4096))
	require.NoError(t, bucket.RemoveSpanFile(ctx, id, 4096))
	_, err = bucket.ReadSpanFile(ctx, id, 4096)
	assert.ErrorIs(t, err, storagev1.ErrSegmentNotFound)
}

func TestUseAllow(t *testing.T) {
	assert.True(t, newTestBucket(t, fixedUsage(79.9)).UseAllow())
	assert.False(t, newTestBucket(t, fixedUsage(95)).UseAllow())

	bad := newTestBucket(t, func(string) (float64, error) { return 0, errors.New("statfs") })
	assert.True(t, bad.HasBad())
}

func TestDefaults(t *testing.T) {
	bucket := newTestBucket(t, fixedUsage(0))
	assert.Equal(t, defaultWeight, bucket.Weight())
	assert.Equal(t, storagev1.TypeNormal, bucket.StoreType())

	_, err := New(&storagev1.BucketConfig{})
	assert.Error(t, err)
}
