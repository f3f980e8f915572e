package indexdb

import (
	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/pkg/encoding"
)

// TypeInMemory as a db path keeps the index in memory only.
const TypeInMemory = ":memory:"

var _ storage.Option = (*option)(nil)

type option struct {
	path   string
	codec  encoding.Codec
	config map[string]any
}

type OptionFunc func(*option)

func NewOption(path string, opts ...OptionFunc) storage.Option {
	o := &option{
		path:  path,
		codec: encoding.GetDefaultCodec(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCodec sets the metadata codec by name, see encoding.GetCodec.
func WithCodec(name string) OptionFunc {
	return func(o *option) {
		if c, err := encoding.GetCodec(name); err == nil {
			o.codec = c
		}
	}
}

// WithDBConfig passes driver specific settings.
func WithDBConfig(config map[string]any) OptionFunc {
	return func(o *option) {
		o.config = config
	}
}

func (o *option) DBPath() string {
	return o.path
}

func (o *option) Codec() encoding.Codec {
	return o.codec
}

func (o *option) Unmarshal(v any) error {
	return storage.DecodeOptions(o.config, v)
}
