package caching_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	storagev1 "github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/caching"
	"github.com/omalloc/spancache/conf"
	"github.com/omalloc/spancache/contrib/log"
	"github.com/omalloc/spancache/storage"
)

const locator = "http://example.com/video"

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func newStore(t *testing.T) storagev1.CacheStore {
	t.Helper()

	s, err := storage.New(&conf.Storage{
		Buckets: []*conf.Bucket{{Path: "/mem", Driver: "memory"}},
	}, log.DefaultLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeUpstream serves data and counts opens.
type fakeUpstream struct {
	data          []byte
	resolveTo     string
	unknownLength bool
	openErr       error
	// readErr ends every read after failAfter bytes.
	readErr   error
	failAfter int64

	opens    atomic.Int32
	mu       sync.Mutex
	locators []string
}

func (f *fakeUpstream) factory() upstream.Factory {
	return func() (upstream.Transport, error) {
		return &fakeTransport{up: f}, nil
	}
}

func (f *fakeUpstream) lastLocator() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.locators) == 0 {
		return ""
	}
	return f.locators[len(f.locators)-1]
}

type fakeTransport struct {
	up       *fakeUpstream
	r        *bytes.Reader
	resolved string
	failing  bool
}

func (t *fakeTransport) Open(_ context.Context, spec upstream.DataSpec) (int64, error) {
	t.up.opens.Add(1)
	t.up.mu.Lock()
	t.up.locators = append(t.up.locators, spec.Locator)
	t.up.mu.Unlock()

	if t.up.openErr != nil {
		return 0, t.up.openErr
	}

	size := int64(len(t.up.data))
	if spec.Position >= size {
		return 0, upstream.ErrPositionOutOfRange
	}
	end := size
	if !spec.Unbounded() && spec.Position+spec.Length < end {
		end = spec.Position + spec.Length
	}
	t.failing = t.up.readErr != nil && spec.Position+t.up.failAfter < end
	if t.failing {
		t.r = bytes.NewReader(t.up.data[spec.Position : spec.Position+t.up.failAfter])
	} else {
		t.r = bytes.NewReader(t.up.data[spec.Position:end])
	}

	t.resolved = spec.Locator
	if t.up.resolveTo != "" {
		t.resolved = t.up.resolveTo
	}

	if t.up.unknownLength && spec.Unbounded() {
		return upstream.LengthUnset, nil
	}
	return end - spec.Position, nil
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	if t.r == nil {
		return 0, upstream.ErrNotOpened
	}
	n, err := t.r.Read(p)
	if errors.Is(err, io.EOF) && t.failing {
		return n, t.up.readErr
	}
	return n, err
}

func (t *fakeTransport) Close() error {
	t.r = nil
	return nil
}

func (t *fakeTransport) ResolvedLocator() string {
	return t.resolved
}

// faultyStore injects store failures.
type faultyStore struct {
	storagev1.CacheStore

	acquireErr   error
	startFileErr error
	emptySegment atomic.Bool
	acquires     atomic.Int32
}

func (f *faultyStore) AcquireSegment(ctx context.Context, key string, position, length int64, blocking bool) (*storagev1.Segment, error) {
	f.acquires.Add(1)
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return f.CacheStore.AcquireSegment(ctx, key, position, length, blocking)
}

func (f *faultyStore) StartFile(ctx context.Context, key string, position, maxLength int64) (storagev1.SpanFile, error) {
	if f.startFileErr != nil {
		return nil, f.startFileErr
	}
	return f.CacheStore.StartFile(ctx, key, position, maxLength)
}

func (f *faultyStore) OpenSegment(ctx context.Context, seg *storagev1.Segment, offset int64) (io.ReadCloser, error) {
	if f.emptySegment.Load() {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return f.CacheStore.OpenSegment(ctx, seg, offset)
}

var errInjected = errors.New("injected")

// recorder records observer notifications.
type recorder struct {
	mu        sync.Mutex
	bytesRead []int64
	reasons   []caching.BypassReason
}

func (r *recorder) OnCacheBytesRead(_, bytesRead int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytesRead = append(r.bytesRead, bytesRead)
}

func (r *recorder) OnCacheBypassed(_ string, reason caching.BypassReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *recorder) totalRead() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, v := range r.bytesRead {
		n += v
	}
	return n
}

func (r *recorder) bypassReasons() []caching.BypassReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]caching.BypassReason(nil), r.reasons...)
}

// readRange opens [position, position+length) and reads it whole.
func readRange(t *testing.T, ds *caching.DataSource, position, length int64) []byte {
	t.Helper()

	_, err := ds.Open(context.Background(), upstream.NewDataSpec(locator, position, length))
	require.NoError(t, err)
	buf, err := io.ReadAll(ds)
	require.NoError(t, err)
	require.NoError(t, ds.Close())
	return buf
}

// readChunked reads ds to EOF in chunks of size n.
func readChunked(ds io.Reader, n int) ([]byte, error) {
	var out []byte
	buf := make([]byte, n)
	for {
		m, err := ds.Read(buf)
		out = append(out, buf[:m]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}
