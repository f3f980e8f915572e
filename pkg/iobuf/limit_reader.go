package iobuf

import "io"

type limitedReadCloser struct {
	io.LimitedReader
	closer io.Closer
}

// LimitReadCloser returns a ReadCloser that reads at most n bytes from rc
// and closes rc on Close.
func LimitReadCloser(rc io.ReadCloser, n int64) io.ReadCloser {
	return &limitedReadCloser{
		LimitedReader: io.LimitedReader{R: rc, N: n},
		closer:        rc,
	}
}

func (l *limitedReadCloser) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, &l.LimitedReader)
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}
