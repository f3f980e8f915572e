package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// LengthUnset marks an unbounded length: read until io.EOF.
const LengthUnset int64 = -1

var (
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrNotOpened          = errors.New("transport not opened")
	ErrAlreadyOpened      = errors.New("transport already opened")
	ErrInvalidSpec        = errors.New("invalid data spec")
)

// DataSpec describes one byte-range read of a resource.
type DataSpec struct {
	Locator  string
	Position int64
	Length   int64 // LengthUnset reads until end of resource
	// Key overrides the derived cache key when not empty.
	Key string
	// Header carries request-specific fields. Transports may forward them and
	// key derivers may salt keys with them.
	Header http.Header
}

// NewDataSpec returns a spec for [position, position+length) of locator.
func NewDataSpec(locator string, position, length int64) DataSpec {
	return DataSpec{Locator: locator, Position: position, Length: length}
}

// Unbounded reports whether s reads until the end of the resource.
func (s DataSpec) Unbounded() bool {
	return s.Length == LengthUnset
}

// WithRange returns a copy of s reading [position, position+length).
func (s DataSpec) WithRange(position, length int64) DataSpec {
	s.Position = position
	s.Length = length
	return s
}

// WithLocator returns a copy of s addressing locator.
func (s DataSpec) WithLocator(locator string) DataSpec {
	s.Locator = locator
	return s
}

// Validate checks the range fields.
func (s DataSpec) Validate() error {
	if s.Locator == "" {
		return fmt.Errorf("%w: empty locator", ErrInvalidSpec)
	}
	if s.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidSpec, s.Position)
	}
	if s.Length < LengthUnset {
		return fmt.Errorf("%w: negative length %d", ErrInvalidSpec, s.Length)
	}
	return nil
}

func (s DataSpec) String() string {
	if s.Unbounded() {
		return fmt.Sprintf("%s [%d-]", s.Locator, s.Position)
	}
	return fmt.Sprintf("%s [%d-%d]", s.Locator, s.Position, s.Position+s.Length)
}

// Transport reads bytes of a remote resource. An instance serves one open
// session at a time.
type Transport interface {
	// Open opens spec and returns the resolved length of the range, or
	// LengthUnset when the transport cannot tell.
	Open(ctx context.Context, spec DataSpec) (int64, error)
	// Read reads into p and returns io.EOF at end of range.
	Read(p []byte) (int, error)
	// Close releases the open range.
	Close() error
	// ResolvedLocator returns the locator the last Open actually read from,
	// after redirects.
	ResolvedLocator() string
}

// StatusError reports an upstream response that cannot satisfy a read.
type StatusError struct {
	Locator string
	Code    int
	Status  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: %d %s", e.Locator, e.Code, e.Status)
}

// Factory creates transports. Each caching session owns one transport.
type Factory func() (Transport, error)
