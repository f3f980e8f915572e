package storage

import (
	"io"
	"os"

	"github.com/cockroachdb/pebble/v2/vfs"
)

// File is a readable, writable sequence of bytes backing one span.
//
// Typically, it will be an *os.File, but the memory bucket substitutes
// pebble's memory-backed vfs files.
//
// Write-oriented operations (Write, Sync) must be called sequentially: At most
// 1 call to Write or Sync may be executed at any given time.
type File interface {
	io.Closer
	io.Reader
	io.ReaderAt
	io.Writer
	io.WriterAt

	Stat() (os.FileInfo, error)
	Sync() error

	// Fd returns the raw file descriptor when a File is backed by an *os.File.
	Fd() uintptr

	Name() string
}

var _ File = (*vfsFile)(nil)

// wrap vfs.File
type vfsFile struct {
	vfs.File
	name   string
	closed bool
}

func (v *vfsFile) Stat() (os.FileInfo, error) {
	return v.File.Stat()
}

func (v *vfsFile) Name() string {
	return v.name
}

func (v *vfsFile) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	return v.File.Close()
}

func WrapVFSFile(f vfs.File, name string) File {
	return &vfsFile{File: f, name: name, closed: false}
}

type sectionReadCloser struct {
	*io.SectionReader
	f File
}

func (s *sectionReadCloser) Close() error {
	return s.f.Close()
}

// SectionReadCloser reads n bytes of f starting at off and closes f on Close.
func SectionReadCloser(f File, off, n int64) io.ReadCloser {
	return &sectionReadCloser{
		SectionReader: io.NewSectionReader(f, off, n),
		f:             f,
	}
}
