package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omalloc/spancache/storage/indexdb"
)

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `spancache:\[a\]\*\?:`, escapeGlob("spancache:[a]*?:"))
	assert.Equal(t, "plain", escapeGlob("plain"))
}

func TestNewRedisDBUnreachable(t *testing.T) {
	opt := indexdb.NewOption("cache", indexdb.WithDBConfig(map[string]any{
		"addr":    "127.0.0.1:1",
		"timeout": "200ms",
	}))

	_, err := NewRedisDB("cache", opt)
	assert.Error(t, err)
}
