package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
)

// newFakeS3 serves one object at /media/a.bin with path-style addressing.
func newFakeS3(t *testing.T, payload []byte) *minio.Client {
	t.Helper()

	modTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/a.bin" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method != http.MethodHead {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("ETag", `"0123456789abcdef"`)
		http.ServeContent(w, r, "a.bin", modTime, bytes.NewReader(payload))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	client, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4("ak", "sk", ""),
		Region:       "us-east-1",
		BucketLookup: minio.BucketLookupPath,
	})
	require.NoError(t, err)
	return client
}

func TestOpenRange(t *testing.T) {
	payload := []byte("0123456789abcdefghij")
	tr := New(newFakeS3(t, payload), "media")

	n, err := tr.Open(context.Background(), upstream.NewDataSpec("s3://media/a.bin", 5, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	got, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, payload[5:15], got)
	require.NoError(t, tr.Close())
	assert.Equal(t, "s3://media/a.bin", tr.ResolvedLocator())

	n, err = tr.Open(context.Background(), upstream.NewDataSpec("a.bin", 15, upstream.LengthUnset))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	got, err = io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, payload[15:], got)
	require.NoError(t, tr.Close())
}

func TestOpenErrors(t *testing.T) {
	tr := New(newFakeS3(t, []byte("0123456789")), "media")

	_, err := tr.Open(context.Background(), upstream.NewDataSpec("s3://media/a.bin", 10, upstream.LengthUnset))
	assert.ErrorIs(t, err, upstream.ErrPositionOutOfRange)

	_, err = tr.Open(context.Background(), upstream.NewDataSpec("s3://media/missing.bin", 0, upstream.LengthUnset))
	var se *upstream.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)

	_, err = New(nil, "").Open(context.Background(), upstream.NewDataSpec("a.bin", 0, 1))
	assert.ErrorIs(t, err, upstream.ErrInvalidSpec)
}
