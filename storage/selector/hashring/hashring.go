package hashring

import (
	"context"
	"sync/atomic"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
)

const (
	Name            = "hashring"
	DefaultReplicas = 20
)

var _ storage.Selector = (*Balancer)(nil)

type Option func(*Balancer)

type Balancer struct {
	replicas int
	ring     atomic.Pointer[Consistent]
}

func New(buckets []storage.Bucket, opts ...Option) (*Balancer, error) {
	b := &Balancer{
		replicas: DefaultReplicas,
	}

	for _, opt := range opts {
		opt(b)
	}

	if err := b.Rebuild(context.Background(), buckets); err != nil {
		return nil, err
	}
	return b, nil
}

// Select implements storage.Selector.
//
// The ring is walked clockwise from the object hash and the first bucket that
// accepts writes and is not failing wins.
func (b *Balancer) Select(ctx context.Context, id *object.ID) storage.Bucket {
	ring := b.ring.Load()
	if ring == nil {
		return nil
	}

	nodes, err := ring.GetN(id.HashStr(), ring.Len())
	if err != nil {
		return nil
	}
	for _, node := range nodes {
		bucket := node.(storage.Bucket)
		if bucket.UseAllow() && !bucket.HasBad() {
			return bucket
		}
	}
	return nil
}

// Rebuild implements storage.Selector.
func (b *Balancer) Rebuild(ctx context.Context, buckets []storage.Bucket) error {
	nodes := make([]Node, 0, len(buckets))
	for _, bucket := range buckets {
		nodes = append(nodes, bucket)
	}

	b.ring.Store(NewConsistent(nodes, b.replicas))
	return nil
}

// WithReplicas sets the virtual points per unit of bucket weight.
func WithReplicas(replicas int) Option {
	return func(b *Balancer) {
		b.replicas = replicas
	}
}
