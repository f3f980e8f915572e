package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// LengthUnset marks an unbounded length: read until the source signals io.EOF.
const LengthUnset int64 = -1

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrSegmentNotFound = errors.New("segment not found")
	ErrNotLocked       = errors.New("range is not locked by caller")
	ErrSpanOverlap     = errors.New("span overlaps a cached span")
	ErrRangeLocked     = errors.New("range is locked")
	ErrStoreClosed     = errors.New("store closed")
)

// Handle is an opaque reference into the store's segment arena.
type Handle uint64

// Segment is a contiguous byte range of a key. A cached segment has its bytes
// committed to a bucket; a hole is an exclusive reservation to fetch and write
// bytes that are not cached yet.
type Segment struct {
	Key      string
	Position int64
	Length   int64 // LengthUnset for an open-ended hole
	Cached   bool
	Handle   Handle
}

func (s *Segment) IsHole() bool {
	return !s.Cached
}

func (s *Segment) IsOpenEnded() bool {
	return s.Length == LengthUnset
}

// End returns the exclusive end offset, or -1 when open-ended.
func (s *Segment) End() int64 {
	if s.IsOpenEnded() {
		return LengthUnset
	}
	return s.Position + s.Length
}

func (s *Segment) String() string {
	kind := "cached"
	if s.IsHole() {
		kind = "hole"
	}
	if s.IsOpenEnded() {
		return fmt.Sprintf("%s[%s %d-]", kind, s.Key, s.Position)
	}
	return fmt.Sprintf("%s[%s %d-%d]", kind, s.Key, s.Position, s.End())
}

// ContentMetadata is what the store knows about a key beyond its spans.
type ContentMetadata struct {
	Length   int64  `json:"length" yaml:"length"`     // LengthUnset until discovered
	Redirect string `json:"redirect" yaml:"redirect"` // last resolved locator, empty when none
}

// Mutation is a set of changes applied atomically to ContentMetadata.
type Mutation struct {
	length         *int64
	redirect       *string
	removeRedirect bool
}

// SetLength records the resolved total length.
func (m Mutation) SetLength(n int64) Mutation {
	m.length = &n
	return m
}

// SetRedirect records the resolved locator.
func (m Mutation) SetRedirect(locator string) Mutation {
	m.redirect = &locator
	m.removeRedirect = false
	return m
}

// RemoveRedirect clears a previously recorded locator.
func (m Mutation) RemoveRedirect() Mutation {
	m.redirect = nil
	m.removeRedirect = true
	return m
}

func (m Mutation) Empty() bool {
	return m.length == nil && m.redirect == nil && !m.removeRedirect
}

// Apply mutates md and reports whether anything changed.
func (m Mutation) Apply(md *ContentMetadata) bool {
	changed := false
	if m.length != nil && md.Length != *m.length {
		md.Length = *m.length
		changed = true
	}
	if m.redirect != nil && md.Redirect != *m.redirect {
		md.Redirect = *m.redirect
		changed = true
	}
	if m.removeRedirect && md.Redirect != "" {
		md.Redirect = ""
		changed = true
	}
	return changed
}

// SpanFile receives bytes for a held hole. Commit publishes the written bytes
// as a cached segment; Discard drops them.
type SpanFile interface {
	io.Writer
	// Position is the absolute offset of the first byte of the file.
	Position() int64
	// Written is the number of bytes accepted so far.
	Written() int64
	Commit() error
	Discard() error
}

// CacheStore holds committed segments per key and arbitrates hole ownership.
type CacheStore interface {
	io.Closer

	// AcquireSegment returns the segment covering position. A nil segment and
	// nil error means the range is locked by someone else and blocking is false.
	// length clips a returned hole; LengthUnset leaves it open to the next span.
	AcquireSegment(ctx context.Context, key string, position, length int64, blocking bool) (*Segment, error)
	// ReleaseHole releases a hole returned by AcquireSegment.
	ReleaseHole(seg *Segment)
	// OpenSegment opens a cached segment for reading starting offset bytes into it.
	OpenSegment(ctx context.Context, seg *Segment, offset int64) (io.ReadCloser, error)
	// StartFile starts a span file at position. The caller must hold a hole covering position.
	StartFile(ctx context.Context, key string, position, maxLength int64) (SpanFile, error)
	// Metadata returns the content metadata of key.
	Metadata(ctx context.Context, key string) (ContentMetadata, error)
	// ApplyMutation applies m to the content metadata of key.
	ApplyMutation(ctx context.Context, key string, m Mutation) error
	// CachedBytes returns how many bytes of [position, position+length) are cached.
	CachedBytes(ctx context.Context, key string, position, length int64) int64
	// CacheSize returns the total committed bytes.
	CacheSize() int64
	// Remove drops every span and the metadata of key.
	Remove(ctx context.Context, key string) error
}

// InterruptedError is returned when a blocking acquisition is abandoned.
// It is retryable.
type InterruptedError struct {
	Key      string
	Position int64
	Err      error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("acquire %s@%d interrupted: %v", e.Key, e.Position, e.Err)
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// Temporary reports the acquisition can be retried.
func (e *InterruptedError) Temporary() bool {
	return true
}
