package iobuf

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type rateLimitReader struct {
	ctx context.Context
	r   io.ReadCloser
	l   *rate.Limiter
}

// NewRateLimitReader caps the read throughput of r to bytesPerSec. Waiting for
// tokens is abandoned when ctx is done.
func NewRateLimitReader(ctx context.Context, r io.ReadCloser, bytesPerSec int) io.ReadCloser {
	return &rateLimitReader{
		ctx: ctx,
		r:   r,
		l:   rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec),
	}
}

func (r *rateLimitReader) Read(p []byte) (int, error) {
	if burst := r.l.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.l.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (r *rateLimitReader) Close() error {
	return r.r.Close()
}
