package storage

import (
	"context"
	"io"

	"github.com/omalloc/spancache/api/defined/v1/storage/object"
)

const (
	TypeNormal   = "normal"
	TypeWarm     = "warm"
	TypeInMemory = "inmemory"
)

type BucketConfig struct {
	Path         string         `json:"path" yaml:"path"`                   // local path
	Driver       string         `json:"driver" yaml:"driver"`               // native, memory
	Type         string         `json:"type" yaml:"type"`                   // normal, inmemory
	Weight       int            `json:"weight" yaml:"weight"`               // hashring weight, range 0-1000
	HighPercent  float64        `json:"high_percent" yaml:"high_percent"`   // stop writing above this disk usage
	MaxSizeBytes uint64         `json:"max_size_bytes" yaml:"max_size_bytes"` // memory bucket capacity
	Options      map[string]any `json:"options" yaml:"options"`             // driver options
}

type Selector interface {
	// Select selects the Bucket by the object ID.
	Select(ctx context.Context, id *object.ID) Bucket
	// Rebuild rebuilds the Bucket hashring.
	// do not call this method frequently.
	Rebuild(ctx context.Context, buckets []Bucket) error
}

// Bucket stores span files.
type Bucket interface {
	io.Closer

	// ID returns the Bucket ID.
	ID() string
	// Weight returns the Bucket weight, range 0-1000.
	Weight() int
	// StoreType returns the bucket type.
	StoreType() string
	// UseAllow reports whether the bucket accepts new span files.
	UseAllow() bool
	// HasBad reports a failing bucket.
	HasBad() bool
	// WriteSpanFile creates the file of the span of id starting at position.
	WriteSpanFile(ctx context.Context, id *object.ID, position int64) (File, string, error)
	// ReadSpanFile opens the file of the span of id starting at position.
	ReadSpanFile(ctx context.Context, id *object.ID, position int64) (File, error)
	// RemoveSpanFile removes the file of the span of id starting at position.
	RemoveSpanFile(ctx context.Context, id *object.ID, position int64) error
}
