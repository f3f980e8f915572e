package object

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omalloc/spancache/pkg/encoding"
	"github.com/omalloc/spancache/pkg/encoding/cobr"
	"github.com/omalloc/spancache/pkg/encoding/json"
	"github.com/omalloc/spancache/pkg/encoding/msgpack"
)

func TestIDMarshal(t *testing.T) {
	id := NewID("http://example.com/path/to/object")

	for _, codec := range []encoding.Codec{json.JSONCodec{}, &cobr.CborCodec{}, msgpack.Codec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			md := &Metadata{
				Key:    id.Key(),
				Length: 1000,
				Spans:  []Span{{Position: 0, Length: 500, Bucket: "b1"}},
			}

			data, err := codec.Marshal(md)
			assert.NoError(t, err, "should marshal without error")

			var got Metadata
			assert.NoError(t, codec.Unmarshal(data, &got), "should unmarshal without error")

			assert.Equal(t, md.Key, got.Key)
			assert.Equal(t, md.Spans, got.Spans)
			assert.Equal(t, id.HashStr(), got.ID().HashStr())
		})
	}
}

func TestIDText(t *testing.T) {
	id := NewID("http://example.com/a.bin")

	b, err := id.MarshalText()
	assert.NoError(t, err)

	var id2 ID
	assert.NoError(t, id2.UnmarshalText(b))
	assert.Equal(t, id.Hash(), id2.Hash())
	assert.Equal(t, id.String(), id2.String())
}

func TestVirtualID(t *testing.T) {
	a := NewID("http://example.com/a.bin")
	b := NewVirtualID("http://example.com/a.bin", "#gzip")

	assert.NotEqual(t, a.Hash(), b.Hash(), "virtual keys must not collide with the plain key")
	assert.Equal(t, "http://example.com/a.bin#gzip", b.Key())
	assert.Equal(t, a.Path(), b.Path())
}

func TestWPathSpan(t *testing.T) {
	id := NewID("http://example.com/a.bin")
	h := id.HashStr()

	assert.Equal(t, filepath.Join("/cache", h[0:1], h[2:4], h, "1024.span"), id.WPathSpan("/cache", 1024))
}

func TestMetadataCachedSize(t *testing.T) {
	md := &Metadata{Spans: []Span{{Position: 100, Length: 50}, {Position: 0, Length: 100}}}
	md.SortSpans()

	assert.Equal(t, int64(150), md.CachedSize())
	assert.Equal(t, int64(0), md.Spans[0].Position)
	assert.Equal(t, int64(150), md.Spans[1].End())
}
