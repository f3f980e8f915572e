package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Key    string `json:"key" msgpack:"key"`
	Length int64  `json:"length" msgpack:"length"`
}

func TestGetCodec(t *testing.T) {
	for _, name := range []string{"json", "cbor", "msgpack", "JSON"} {
		c, err := GetCodec(name)
		require.NoError(t, err, name)

		in := record{Key: "http://example.com/a", Length: 750}
		data, err := c.Marshal(in)
		require.NoError(t, err)

		var out record
		require.NoError(t, c.Unmarshal(data, &out))
		assert.Equal(t, in, out, name)
	}

	_, err := GetCodec("gob")
	assert.Error(t, err)

	c, err := GetCodec("")
	assert.NoError(t, err)
	assert.Equal(t, Name(), c.Name())
}

func TestJSONKeepsLocator(t *testing.T) {
	c, err := GetCodec("json")
	require.NoError(t, err)

	data, err := c.Marshal(record{Key: "http://example.com/a?x=1&y=<2>"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "x=1&y=<2>")
}

func TestCborDeterministic(t *testing.T) {
	c, err := GetCodec("cbor")
	require.NoError(t, err)

	a, err := c.Marshal(map[string]int64{"length": 750, "position": 0, "bucket": 1})
	require.NoError(t, err)
	for range 10 {
		b, err := c.Marshal(map[string]int64{"bucket": 1, "position": 0, "length": 750})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}
