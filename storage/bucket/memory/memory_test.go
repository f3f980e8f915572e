package memory_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/storage/bucket/memory"
)

func TestMemoryBucket(t *testing.T) {
	bucket, err := memory.New(&storage.BucketConfig{
		Path:         "/inmemory",
		MaxSizeBytes: 4096,
	})
	require.NoError(t, err)
	defer bucket.Close()

	assert.Equal(t, storage.TypeInMemory, bucket.StoreType())
	assert.True(t, bucket.UseAllow())

	ctx := context.Background()
	id := object.NewID("http://www.example.com/path/to/4k.bin")

	payload := make([]byte, 4096)
	_, _ = rand.Read(payload)

	f, _, err := bucket.WriteSpanFile(ctx, id, 0)
	require.NoError(t, err)
	_, err = f.Write(payload)
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	// full
	assert.False(t, bucket.UseAllow())

	r, err := bucket.ReadSpanFile(ctx, id, 0)
	require.NoError(t, err)
	rc := storage.SectionReadCloser(r, 1024, 1024)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload[1024:2048], got)
	require.NoError(t, rc.Close())

	require.NoError(t, bucket.RemoveSpanFile(ctx, id, 0))
	assert.True(t, bucket.UseAllow())

	_, err = bucket.ReadSpanFile(ctx, id, 0)
	assert.ErrorIs(t, err, storage.ErrSegmentNotFound)
}
