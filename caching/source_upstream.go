package caching

import (
	"context"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
)

var _ source = (*upstreamSource)(nil)

// upstreamSource reads the transport without caching.
type upstreamSource struct {
	transport upstream.Transport
}

func (u *upstreamSource) open(ctx context.Context, spec upstream.DataSpec) (int64, error) {
	return u.transport.Open(ctx, spec)
}

func (u *upstreamSource) Read(p []byte) (int, error) {
	return u.transport.Read(p)
}

func (u *upstreamSource) Close() error {
	return u.transport.Close()
}

func (u *upstreamSource) kind() sourceKind {
	return sourceUpstream
}

func (u *upstreamSource) resolvedLocator() string {
	return u.transport.ResolvedLocator()
}
