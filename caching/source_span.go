package caching

import (
	"context"
	"io"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/pkg/iobuf"
)

var _ source = (*spanSource)(nil)

// spanSource reads a committed segment.
type spanSource struct {
	store storage.CacheStore
	seg   *storage.Segment
	rc    io.ReadCloser
}

func newSpanSource(store storage.CacheStore, seg *storage.Segment) *spanSource {
	return &spanSource{store: store, seg: seg}
}

func (s *spanSource) open(ctx context.Context, spec upstream.DataSpec) (int64, error) {
	offset := spec.Position - s.seg.Position
	rc, err := s.store.OpenSegment(ctx, s.seg, offset)
	if err != nil {
		return 0, &CacheError{Op: "open", Key: s.seg.Key, Err: err}
	}

	length := s.seg.Length - offset
	if !spec.Unbounded() && spec.Length < length {
		length = spec.Length
		rc = iobuf.LimitReadCloser(rc, length)
	}
	s.rc = rc
	return length, nil
}

func (s *spanSource) Read(p []byte) (int, error) {
	if s.rc == nil {
		return 0, ErrNotOpened
	}
	n, err := s.rc.Read(p)
	if err != nil && err != io.EOF {
		err = &CacheError{Op: "read", Key: s.seg.Key, Err: err}
	}
	return n, err
}

func (s *spanSource) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	if err != nil {
		return &CacheError{Op: "close", Key: s.seg.Key, Err: err}
	}
	return nil
}

func (s *spanSource) kind() sourceKind {
	return sourceCache
}

func (s *spanSource) resolvedLocator() string {
	return ""
}
