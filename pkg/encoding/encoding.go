package encoding

import (
	"fmt"
	"strings"
	"sync"

	"github.com/omalloc/spancache/pkg/encoding/cobr"
	"github.com/omalloc/spancache/pkg/encoding/json"
	"github.com/omalloc/spancache/pkg/encoding/msgpack"
)

var (
	mu           sync.Mutex
	defaultCodec Codec = json.JSONCodec{}

	codecs = map[string]Codec{
		"json":    json.JSONCodec{},
		"cbor":    &cobr.CborCodec{},
		"msgpack": msgpack.Codec{},
	}
)

// Codec encodes and decodes persisted records. Implementations must be safe
// for concurrent use.
type Codec interface {
	// Marshal returns the wire format of v.
	Marshal(v any) ([]byte, error)
	// Unmarshal parses the wire format into v.
	Unmarshal(data []byte, v any) error
	// Name returns the name of the Codec implementation.
	Name() string
}

// SetDefaultCodec sets the default codec.
func SetDefaultCodec(codec Codec) {
	mu.Lock()
	defer mu.Unlock()

	defaultCodec = codec
}

func GetDefaultCodec() Codec {
	mu.Lock()
	defer mu.Unlock()

	return defaultCodec
}

// GetCodec returns a codec by name; an empty name selects the default codec.
func GetCodec(name string) (Codec, error) {
	if name == "" {
		return GetDefaultCodec(), nil
	}
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("codec %q not found", name)
	}
	return c, nil
}

func Marshal(v any) ([]byte, error) {
	return GetDefaultCodec().Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return GetDefaultCodec().Unmarshal(data, v)
}

func Name() string {
	return GetDefaultCodec().Name()
}
