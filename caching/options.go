package caching

import (
	"github.com/dustin/go-humanize"

	"github.com/omalloc/spancache/conf"
	"github.com/omalloc/spancache/contrib/log"
)

const (
	// DefaultLookAhead is how far a bare upstream read runs before the cache
	// is consulted again.
	DefaultLookAhead int64 = 100 * humanize.KiByte
	// DefaultFragmentSize is the span size the cache writer commits at.
	DefaultFragmentSize int64 = 5 * humanize.MiByte
	// DefaultMaxSourceSwitches caps consecutive reopens at the same position
	// after a source ended before its expected length.
	DefaultMaxSourceSwitches = 8
)

type options struct {
	blockOnCache              bool
	ignoreCacheOnError        bool
	ignoreCacheForUnsetLength bool
	writer                    bool
	fragmentSize              int64
	lookAhead                 int64
	maxSourceSwitches         int
	keyDeriver                KeyDeriver
	observer                  Observer
	logger                    log.Logger
}

type Option func(o *options)

// WithBlockOnCache waits for a conflicting hole to be released instead of
// reading the range from upstream.
func WithBlockOnCache(on bool) Option {
	return func(o *options) {
		o.blockOnCache = on
	}
}

// WithIgnoreCacheOnError bypasses the cache for the rest of the session after
// a cache error.
func WithIgnoreCacheOnError(on bool) Option {
	return func(o *options) {
		o.ignoreCacheOnError = on
	}
}

// WithIgnoreCacheForUnsetLength bypasses the cache for unbounded requests.
func WithIgnoreCacheForUnsetLength(on bool) Option {
	return func(o *options) {
		o.ignoreCacheForUnsetLength = on
	}
}

// WithCacheWriter writes upstream bytes into the cache, committing a span
// every fragmentSize bytes. fragmentSize <= 0 uses DefaultFragmentSize.
// Without it the data source only reads from the cache.
func WithCacheWriter(fragmentSize int64) Option {
	return func(o *options) {
		o.writer = true
		if fragmentSize > 0 {
			o.fragmentSize = fragmentSize
		}
	}
}

func WithLookAhead(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.lookAhead = n
		}
	}
}

func WithMaxSourceSwitches(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSourceSwitches = n
		}
	}
}

func WithKeyDeriver(kd KeyDeriver) Option {
	return func(o *options) {
		if kd != nil {
			o.keyDeriver = kd
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		fragmentSize:      DefaultFragmentSize,
		lookAhead:         DefaultLookAhead,
		maxSourceSwitches: DefaultMaxSourceSwitches,
		keyDeriver:        DefaultKeyDeriver,
		logger:            log.GetLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FromConfig translates the caching section of the bootstrap config.
func FromConfig(c *conf.Caching, fragmentSize int64) []Option {
	if c == nil {
		return []Option{WithCacheWriter(fragmentSize)}
	}

	opts := []Option{
		WithBlockOnCache(c.BlockOnCache),
		WithIgnoreCacheOnError(c.IgnoreCacheOnError),
		WithIgnoreCacheForUnsetLength(c.IgnoreCacheForUnsetLength),
		WithLookAhead(c.LookAhead),
		WithMaxSourceSwitches(c.MaxSourceSwitches),
		WithKeyDeriver(NewKeyDeriver(
			IncludeQuery(c.IncludeQueryInCacheKey),
			VirtualKeyHeader(c.VirtualKeyHeader),
		)),
	}
	if !c.ReadOnly {
		opts = append(opts, WithCacheWriter(fragmentSize))
	}
	return opts
}
