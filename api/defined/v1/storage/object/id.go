package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
)

// IdHashSize is the size of the byte array that contains the object hash.
const IdHashSize = sha1.Size

// IDHash is the fixed-width byte array that represents an ObjectID hash.
type IDHash [IdHashSize]byte

// ID identifies a cached resource: the resource key plus an optional virtual
// suffix that salts it for request-specific variants.
type ID struct {
	path string
	ext  string
	hash IDHash

	cacheID string
}

func (id *ID) String() string {
	return id.cacheID
}

// Key returns the concatenation of the path and ext of the ID.
func (id *ID) Key() string {
	return id.path + id.ext
}

// Path returns the path of the ID.
func (id *ID) Path() string {
	return id.path
}

// Ext returns the ext of the ID.
func (id *ID) Ext() string {
	return id.ext
}

func (id *ID) Hash() IDHash {
	return id.hash
}

func (id *ID) HashStr() string {
	return hex.EncodeToString(id.hash[:])
}

func (id *ID) Bytes() []byte {
	return id.hash[:]
}

// WPath returns the read/write directory of the object ID.
// dir F/FF/hash with path.
func (id *ID) WPath(pwd string) string {
	return id.hash.WPath(pwd)
}

// WPathSpan returns the path of the span file starting at position.
func (id *ID) WPathSpan(pwd string, position int64) string {
	return filepath.Join(id.WPath(pwd), strconv.FormatInt(position, 10)+".span")
}

func (idx IDHash) WPath(pwd string) string {
	h := hex.EncodeToString(idx[:])
	return filepath.Join(pwd, h[0:1], h[2:4], h)
}

// MarshalText encodes the ID as its key; the hash is derived again on decode.
func (id *ID) MarshalText() ([]byte, error) {
	return []byte(id.Key()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	*id = *NewID(string(b))
	return nil
}

func NewID(path string) *ID {
	hash := sha1.Sum([]byte(path))
	return &ID{
		path:    path,
		ext:     "",
		hash:    hash,
		cacheID: fmt.Sprintf("{%x:%s}", hash, path),
	}
}

// NewVirtualID salts path with virtualKey so request variants of one resource
// get distinct hashes.
func NewVirtualID(path string, virtualKey string) *ID {
	hash := sha1.Sum([]byte(path + virtualKey))
	return &ID{
		path:    path,
		ext:     virtualKey,
		hash:    hash,
		cacheID: fmt.Sprintf("{%x:%s%s}", hash, path, virtualKey),
	}
}
