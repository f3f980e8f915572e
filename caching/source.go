package caching

import (
	"context"
	"io"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
)

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceUpstream
	sourceCache
	sourceWrite
)

func (k sourceKind) String() string {
	switch k {
	case sourceUpstream:
		return "upstream"
	case sourceCache:
		return "cache"
	case sourceWrite:
		return "write"
	default:
		return "none"
	}
}

// source is one of the readers a session switches between.
type source interface {
	io.ReadCloser

	// open opens spec and returns the resolved length of the range, or
	// upstream.LengthUnset when unknown.
	open(ctx context.Context, spec upstream.DataSpec) (int64, error)
	kind() sourceKind
	// resolvedLocator returns the locator actually read from after open.
	resolvedLocator() string
}
