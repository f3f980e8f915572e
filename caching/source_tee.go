package caching

import (
	"context"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
)

var _ source = (*teeSource)(nil)

// teeSource reads the transport and writes every byte it returns into a
// cache sink in the same pass. Sink failures never fail the read: the sink
// is aborted, onError is told, and streaming continues uncached.
type teeSource struct {
	transport upstream.Transport
	sink      *cacheSink
	onError   func(error)
}

func (t *teeSource) open(ctx context.Context, spec upstream.DataSpec) (int64, error) {
	length, err := t.transport.Open(ctx, spec)
	if err != nil {
		return 0, err
	}
	if length == 0 {
		return 0, nil
	}

	limit := spec.Length
	if spec.Unbounded() {
		limit = length
	}
	t.sink.open(spec.Position, limit)
	return length, nil
}

func (t *teeSource) Read(p []byte) (int, error) {
	n, err := t.transport.Read(p)
	if n > 0 && t.sink.active() {
		if _, werr := t.sink.Write(p[:n]); werr != nil {
			t.fail(werr)
		}
	}
	return n, err
}

func (t *teeSource) fail(err error) {
	t.sink.abort()
	if t.onError != nil {
		t.onError(err)
	}
}

func (t *teeSource) Close() error {
	err := t.transport.Close()
	if serr := t.sink.Close(); serr != nil && t.onError != nil {
		t.onError(serr)
	}
	return err
}

func (t *teeSource) kind() sourceKind {
	return sourceWrite
}

func (t *teeSource) resolvedLocator() string {
	return t.transport.ResolvedLocator()
}
