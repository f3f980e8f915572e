package caching

import (
	"context"

	"github.com/omalloc/spancache/api/defined/v1/storage"
)

// cacheSink writes a byte stream into span files, committing one span every
// fragmentSize bytes.
type cacheSink struct {
	ctx          context.Context
	store        storage.CacheStore
	key          string
	fragmentSize int64

	position int64 // absolute offset of the next byte
	end      int64 // exclusive limit, LengthUnset when open
	file     storage.SpanFile
	opened   bool
	failed   bool
}

func newCacheSink(ctx context.Context, store storage.CacheStore, key string, fragmentSize int64) *cacheSink {
	return &cacheSink{
		ctx:          ctx,
		store:        store,
		key:          key,
		fragmentSize: fragmentSize,
	}
}

// open starts a stream at position of at most length bytes.
func (s *cacheSink) open(position, length int64) {
	s.position = position
	s.end = storage.LengthUnset
	if length != storage.LengthUnset {
		s.end = position + length
	}
	s.file = nil
	s.opened = true
	s.failed = false
}

func (s *cacheSink) active() bool {
	return s.opened && !s.failed
}

func (s *cacheSink) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if s.end != storage.LengthUnset && s.position >= s.end {
			break
		}

		if s.file == nil {
			if err := s.startFile(); err != nil {
				return written, &CacheError{Op: "write", Key: s.key, Err: err}
			}
		}

		room := s.fragmentSize - s.file.Written()
		chunk := p
		if int64(len(chunk)) > room {
			chunk = chunk[:room]
		}

		n, err := s.file.Write(chunk)
		written += n
		s.position += int64(n)
		p = p[n:]
		if err != nil {
			return written, &CacheError{Op: "write", Key: s.key, Err: err}
		}

		if s.file.Written() >= s.fragmentSize {
			if err := s.commitFile(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (s *cacheSink) startFile() error {
	maxLength := s.fragmentSize
	if s.end != storage.LengthUnset {
		maxLength = min(maxLength, s.end-s.position)
	}
	f, err := s.store.StartFile(s.ctx, s.key, s.position, maxLength)
	if err != nil {
		return err
	}
	s.file = f
	return nil
}

func (s *cacheSink) commitFile() error {
	f := s.file
	s.file = nil
	if err := f.Commit(); err != nil {
		return &CacheError{Op: "commit", Key: s.key, Err: err}
	}
	return nil
}

// abort discards the uncommitted file and stops writing until the next open.
func (s *cacheSink) abort() {
	s.failed = true
	if s.file != nil {
		_ = s.file.Discard()
		s.file = nil
	}
}

// Close commits the pending file.
func (s *cacheSink) Close() error {
	if !s.opened {
		return nil
	}
	s.opened = false
	if s.failed || s.file == nil {
		return nil
	}
	return s.commitFile()
}
