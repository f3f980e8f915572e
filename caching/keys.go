package caching

import (
	"net/url"
	"strings"

	"github.com/omalloc/spancache/api/defined/v1/storage/object"
	"github.com/omalloc/spancache/api/defined/v1/upstream"
)

// KeyDeriver maps a read request to its cache key. It must be deterministic
// and ignore the requested range.
type KeyDeriver func(spec *upstream.DataSpec) string

// DefaultKeyDeriver uses the explicit spec key, or the canonical locator
// without its query string.
var DefaultKeyDeriver = NewKeyDeriver()

type keyOptions struct {
	includeQuery  bool
	virtualHeader string
}

type KeyOption func(o *keyOptions)

// IncludeQuery keeps the sorted query string in the key.
func IncludeQuery(on bool) KeyOption {
	return func(o *keyOptions) {
		o.includeQuery = on
	}
}

// VirtualKeyHeader salts the key with the value of the named request header,
// so request variants of one resource are cached apart.
func VirtualKeyHeader(name string) KeyOption {
	return func(o *keyOptions) {
		o.virtualHeader = name
	}
}

func NewKeyDeriver(opts ...KeyOption) KeyDeriver {
	o := &keyOptions{}
	for _, opt := range opts {
		opt(o)
	}

	return func(spec *upstream.DataSpec) string {
		key := spec.Key
		if key == "" {
			key = CanonicalLocator(spec.Locator, o.includeQuery)
		}

		if o.virtualHeader != "" && spec.Header != nil {
			if v := spec.Header.Get(o.virtualHeader); v != "" {
				return object.NewVirtualID(key, "#"+v).Key()
			}
		}
		return key
	}
}

// CanonicalLocator normalizes a URL locator: lower-cased scheme and host,
// default port dropped, fragment dropped, query dropped or sorted. Locators
// that are not absolute URLs are returned unchanged.
func CanonicalLocator(locator string, includeQuery bool) string {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return locator
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	switch {
	case port == "80" && u.Scheme == "http", port == "443" && u.Scheme == "https":
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	if u.Path == "" {
		u.Path = "/"
	}

	if includeQuery && u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	} else {
		u.RawQuery = ""
	}
	u.ForceQuery = false
	return u.String()
}
