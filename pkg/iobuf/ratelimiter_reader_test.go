package iobuf

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitReader(t *testing.T) {
	data := make([]byte, 3000)
	r := NewRateLimitReader(context.Background(), &mockReadCloser{data: string(data)}, 1000)
	defer r.Close()

	start := time.Now()
	buf, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, buf, 3000)
	// the first 1000 bytes are the burst
	assert.GreaterOrEqual(t, time.Since(start), 1500*time.Millisecond)
}

func TestRateLimitReaderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRateLimitReader(ctx, &mockReadCloser{data: string(make([]byte, 100))}, 10)

	p := make([]byte, 10)
	_, err := r.Read(p)
	require.NoError(t, err)

	cancel()
	_, err = r.Read(p)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, r.Close())
}

type mockReadCloser struct {
	data string
	off  int
}

func (m *mockReadCloser) Read(p []byte) (int, error) {
	if m.off >= len(m.data) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.off:])
	m.off += n
	return n, nil
}

func (m *mockReadCloser) Close() error {
	return nil
}
