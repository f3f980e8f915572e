package caching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omalloc/spancache/api/defined/v1/event"
)

func TestEventObserver(t *testing.T) {
	read := make(chan event.CacheBytesRead, 1)
	bypassed := make(chan event.CacheBypassed, 1)
	event.Subscribe[event.CacheBytesRead](event.CacheBytesReadTopic, func(_ context.Context, v event.CacheBytesRead) {
		read <- v
	})
	event.Subscribe[event.CacheBypassed](event.CacheBypassedTopic, func(_ context.Context, v event.CacheBypassed) {
		bypassed <- v
	})

	obs := NewEventObserver()
	obs.OnCacheBytesRead(1024, 100)
	obs.OnCacheBypassed("k", BypassUnsetLength)

	select {
	case v := <-read:
		assert.Equal(t, event.CacheBytesRead{CacheSize: 1024, BytesRead: 100}, v)
	case <-time.After(time.Second):
		t.Fatal("bytes read not published")
	}

	select {
	case v := <-bypassed:
		assert.Equal(t, event.CacheBypassed{Key: "k", Reason: "unset_length"}, v)
	case <-time.After(time.Second):
		t.Fatal("bypass not published")
	}
}
