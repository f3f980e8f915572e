package caching

import (
	"errors"
	"fmt"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
)

var (
	// ErrPositionOutOfRange is returned by Open when the requested position is
	// at or past the resolved end of the resource.
	ErrPositionOutOfRange = upstream.ErrPositionOutOfRange

	ErrNotOpened     = errors.New("data source not opened")
	ErrAlreadyOpened = errors.New("data source already opened")
)

// CacheError wraps a failure of the cache store. Transport errors are never
// wrapped.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// IsCacheError reports whether err originated in the cache store.
func IsCacheError(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce)
}
