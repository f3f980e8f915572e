package storage

import (
	"context"
	"errors"
	"io"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
)

var _ storage.SpanFile = (*spanFile)(nil)

var errSpanFileDone = errors.New("span file already committed or discarded")

type spanFile struct {
	store     *nativeStorage
	id        *object.ID
	bucket    storage.Bucket
	file      storage.File
	position  int64
	maxLength int64
	written   int64
	done      bool
}

func (s *spanFile) Position() int64 {
	return s.position
}

func (s *spanFile) Written() int64 {
	return s.written
}

// Write appends p. Bytes beyond maxLength are refused with io.ErrShortWrite.
func (s *spanFile) Write(p []byte) (int, error) {
	if s.done {
		return 0, errSpanFileDone
	}

	var short bool
	if s.maxLength != storage.LengthUnset && s.written+int64(len(p)) > s.maxLength {
		p = p[:max(s.maxLength-s.written, 0)]
		short = true
	}

	n, err := s.file.Write(p)
	s.written += int64(n)
	if err == nil && short {
		err = io.ErrShortWrite
	}
	return n, err
}

func (s *spanFile) Commit() error {
	if s.done {
		return errSpanFileDone
	}
	if s.written == 0 {
		return s.Discard()
	}
	s.done = true

	ctx := context.Background()
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		_ = s.bucket.RemoveSpanFile(ctx, s.id, s.position)
		return err
	}
	if err := s.file.Close(); err != nil {
		_ = s.bucket.RemoveSpanFile(ctx, s.id, s.position)
		return err
	}

	if err := s.store.commit(ctx, s.id, s.bucket, s.position, s.written); err != nil {
		_ = s.bucket.RemoveSpanFile(ctx, s.id, s.position)
		return err
	}
	return nil
}

func (s *spanFile) Discard() error {
	if s.done {
		return nil
	}
	s.done = true

	return errors.Join(
		s.file.Close(),
		s.bucket.RemoveSpanFile(context.Background(), s.id, s.position),
	)
}
