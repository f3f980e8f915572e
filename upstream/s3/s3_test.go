package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/pkg/x/http/rangecontrol"
)

type mockS3 struct {
	objects map[string][]byte
	calls   int
}

func (m *mockS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.calls++

	data, ok := m.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	if params.Range == nil {
		return &s3.GetObjectOutput{
			Body:          io.NopCloser(bytes.NewReader(data)),
			ContentLength: aws.Int64(int64(len(data))),
		}, nil
	}

	ranges, err := rangecontrol.Parse(aws.ToString(params.Range))
	if err != nil || len(ranges) != 1 {
		return nil, &smithy.GenericAPIError{Code: "InvalidArgument"}
	}
	r := ranges[0]
	if r.Start >= int64(len(data)) {
		return nil, &smithy.GenericAPIError{Code: "InvalidRange"}
	}
	if r.OpenEnded() || r.End >= int64(len(data)) {
		r.End = int64(len(data)) - 1
	}
	part := data[r.Start : r.End+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(part)),
		ContentLength: aws.Int64(int64(len(part))),
		ContentRange:  aws.String((&rangecontrol.ContentRange{Start: r.Start, End: r.End, Size: int64(len(data))}).String()),
	}, nil
}

func TestOpen(t *testing.T) {
	payload := []byte("0123456789abcdefghij")
	tr := New(&mockS3{objects: map[string][]byte{"media/a.bin": payload}}, "media")

	tests := []struct {
		locator  string
		position int64
		length   int64
		want     []byte
	}{
		{"s3://media/a.bin", 0, upstream.LengthUnset, payload},
		{"a.bin", 5, 10, payload[5:15]},
		{"a.bin", 15, upstream.LengthUnset, payload[15:]},
		{"a.bin", 18, 10, payload[18:]},
	}

	for _, tc := range tests {
		n, err := tr.Open(context.Background(), upstream.NewDataSpec(tc.locator, tc.position, tc.length))
		require.NoError(t, err)
		assert.Equal(t, int64(len(tc.want)), n)

		got, err := io.ReadAll(tr)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		require.NoError(t, tr.Close())
		assert.Equal(t, tc.locator, tr.ResolvedLocator())
	}
}

func TestOpenErrors(t *testing.T) {
	tr := New(&mockS3{objects: map[string][]byte{"media/a.bin": []byte("0123")}}, "media")

	_, err := tr.Open(context.Background(), upstream.NewDataSpec("a.bin", 4, upstream.LengthUnset))
	assert.ErrorIs(t, err, upstream.ErrPositionOutOfRange)

	_, err = tr.Open(context.Background(), upstream.NewDataSpec("b.bin", 0, upstream.LengthUnset))
	var se *upstream.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)

	_, err = tr.Read(make([]byte, 1))
	assert.ErrorIs(t, err, upstream.ErrNotOpened)
}
