package event

const (
	// CacheBytesReadKey is emitted when a read session flushes its cache-read counter.
	CacheBytesReadKey Kind = "cache.bytes_read"
	// CacheBypassedKey is emitted when a read session stops using the cache.
	CacheBypassedKey Kind = "cache.bypassed"
)

var (
	CacheBytesReadTopic = NewTopicKey[CacheBytesRead](CacheBytesReadKey)
	CacheBypassedTopic  = NewTopicKey[CacheBypassed](CacheBypassedKey)
)

// CacheBytesRead carries a cache-read notification.
type CacheBytesRead struct {
	// CacheSize is the committed size of the whole store at notification time.
	CacheSize int64
	// BytesRead is the number of bytes served from cache since the previous notification.
	BytesRead int64
}

// CacheBypassed carries the reason a session bypassed the cache.
type CacheBypassed struct {
	Key    string
	Reason string
}
