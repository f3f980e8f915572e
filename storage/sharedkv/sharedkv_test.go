package sharedkv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/storage/sharedkv"
)

func TestCounter(t *testing.T) {
	kv := sharedkv.NewMemSharedKV()
	defer kv.Close()

	ctx := context.Background()
	key := []byte("usage/example.com")

	_, err := kv.GetCounter(ctx, key)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	n, err := kv.Incr(ctx, key, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), n)

	n, err = kv.Incr(ctx, key, 24)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), n)

	n, err = kv.Decr(ctx, key, 2048)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	n, err = kv.GetCounter(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestPrefix(t *testing.T) {
	kv := sharedkv.NewMemSharedKV()
	defer kv.Close()

	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, []byte("ix/a"), []byte("1")))
	require.NoError(t, kv.Set(ctx, []byte("ix/b"), []byte("2")))
	require.NoError(t, kv.Set(ctx, []byte("iy/c"), []byte("3")))

	var keys []string
	require.NoError(t, kv.IteratePrefix(ctx, []byte("ix/"), func(key, val []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	assert.Equal(t, []string{"ix/a", "ix/b"}, keys)

	require.NoError(t, kv.DropPrefix(ctx, []byte("ix/")))
	_, err := kv.Get(ctx, []byte("ix/a"))
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	val, err := kv.Get(ctx, []byte("iy/c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), val)
}
