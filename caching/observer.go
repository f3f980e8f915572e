package caching

import (
	"context"

	"github.com/omalloc/spancache/api/defined/v1/event"
)

// BypassReason tells why a session stopped using the cache.
type BypassReason string

const (
	BypassError       BypassReason = "error"
	BypassUnsetLength BypassReason = "unset_length"
)

// Observer receives informational notifications from data sources. It is
// called from the session's goroutine and must not block.
type Observer interface {
	// OnCacheBytesRead reports bytes served from cache since the previous call.
	OnCacheBytesRead(cacheSize, bytesRead int64)
	// OnCacheBypassed reports that the session with the given key bypasses the cache.
	OnCacheBypassed(key string, reason BypassReason)
}

var _ Observer = (*EventObserver)(nil)

// EventObserver publishes notifications on the process event bus.
type EventObserver struct {
	bytesRead func(ctx context.Context, payload event.CacheBytesRead)
	bypassed  func(ctx context.Context, payload event.CacheBypassed)
}

func NewEventObserver() *EventObserver {
	return &EventObserver{
		bytesRead: event.NewPublish[event.CacheBytesRead](event.CacheBytesReadTopic),
		bypassed:  event.NewPublish[event.CacheBypassed](event.CacheBypassedTopic),
	}
}

func (e *EventObserver) OnCacheBytesRead(cacheSize, bytesRead int64) {
	e.bytesRead(context.Background(), event.CacheBytesRead{CacheSize: cacheSize, BytesRead: bytesRead})
}

func (e *EventObserver) OnCacheBypassed(key string, reason BypassReason) {
	e.bypassed(context.Background(), event.CacheBypassed{Key: key, Reason: string(reason)})
}
