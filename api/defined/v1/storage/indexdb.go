package storage

import (
	"context"
	"io"

	"github.com/go-viper/mapstructure/v2"

	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/pkg/encoding"
)

// IterateFunc is called for each record; returning false stops iteration.
type IterateFunc func(key []byte, meta *object.Metadata) bool

// IndexDB persists object metadata.
type IndexDB interface {
	io.Closer

	Get(ctx context.Context, key []byte) (*object.Metadata, error)
	Set(ctx context.Context, key []byte, val *object.Metadata) error
	Exist(ctx context.Context, key []byte) bool
	Delete(ctx context.Context, key []byte) error
	Iterate(ctx context.Context, prefix []byte, f IterateFunc) error
}

type IndexDBFactory func(path string, option Option) (IndexDB, error)

// Option carries indexdb construction parameters.
type Option interface {
	DBPath() string
	Codec() encoding.Codec
	Unmarshal(v any) error
}

// SharedKV is a small key-value store shared by all buckets.
type SharedKV interface {
	io.Closer

	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key []byte, val []byte) error
	Incr(ctx context.Context, key []byte, delta uint64) (uint64, error)
	Decr(ctx context.Context, key []byte, delta uint64) (uint64, error)
	GetCounter(ctx context.Context, key []byte) (uint64, error)
	Delete(ctx context.Context, key []byte) error
	DropPrefix(ctx context.Context, prefix []byte) error
	IteratePrefix(ctx context.Context, prefix []byte, f func(key, val []byte) error) error
}

// DecodeOptions decodes a free-form option map into v.
func DecodeOptions(in map[string]any, v any) error {
	if len(in) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
