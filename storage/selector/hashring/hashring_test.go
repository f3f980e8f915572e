package hashring_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/storage/selector/hashring"
)

type fakeBucket struct {
	storage.Bucket
	id     string
	weight int
	allow  bool
}

func (f *fakeBucket) ID() string     { return f.id }
func (f *fakeBucket) Weight() int    { return f.weight }
func (f *fakeBucket) UseAllow() bool { return f.allow }
func (f *fakeBucket) HasBad() bool   { return false }

func TestSelectStable(t *testing.T) {
	buckets := []storage.Bucket{
		&fakeBucket{id: "/cache1", weight: 10, allow: true},
		&fakeBucket{id: "/cache2", weight: 10, allow: true},
		&fakeBucket{id: "/cache3", weight: 10, allow: true},
	}
	b, err := hashring.New(buckets)
	require.NoError(t, err)

	ctx := context.Background()
	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		id := object.NewID(fmt.Sprintf("http://example.com/file-%d.bin", i))
		first := b.Select(ctx, id)
		require.NotNil(t, first)
		assert.Equal(t, first.ID(), b.Select(ctx, id).ID())
		seen[first.ID()]++
	}
	assert.Len(t, seen, 3)
}

func TestSelectSkipsFullBucket(t *testing.T) {
	full := &fakeBucket{id: "/full", weight: 10, allow: false}
	free := &fakeBucket{id: "/free", weight: 10, allow: true}
	b, err := hashring.New([]storage.Bucket{full, free})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		got := b.Select(context.Background(), object.NewID(fmt.Sprintf("k%d", i)))
		require.NotNil(t, got)
		assert.Equal(t, "/free", got.ID())
	}
}

func TestSelectEmpty(t *testing.T) {
	b, err := hashring.New(nil)
	require.NoError(t, err)
	assert.Nil(t, b.Select(context.Background(), object.NewID("k")))
}

func TestConsistentGetN(t *testing.T) {
	c := hashring.NewConsistent([]hashring.Node{
		&fakeBucket{id: "a", weight: 1},
		&fakeBucket{id: "b", weight: 2},
	}, hashring.DefaultReplicas)

	nodes, err := c.GetN("key", 5)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	assert.NotEqual(t, nodes[0].ID(), nodes[1].ID())
	assert.Equal(t, []string{"a", "b"}, c.Members())

	c.Remove(nodes[0])
	assert.Equal(t, 1, c.Len())
}
