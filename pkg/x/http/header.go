package http

import (
	"net/http"
	"net/textproto"
	"strings"
)

// CopyHeader adds every value of src to dst, replacing keys dst already has.
func CopyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = make([]string, 0, len(vv))
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// Hop-by-hop headers, RFC 2616 section 13.5.1. They never travel upstream.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection", // non-standard but still sent by libcurl and rejected by e.g. google
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",      // canonicalized version of "TE"
	"Trailer", // not Trailers per URL above; https://www.rfc-editor.org/errata_search.php?eid=4522
	"Transfer-Encoding",
	"Upgrade",
}

// Fields the transport owns on range requests.
var rangeHeaders = []string{
	"Range",
	"If-Range",
	"Accept-Encoding",
}

// RemoveHopByHopHeaders removes hop-by-hop headers and the fields named by
// the Connection header (RFC 7230, section 6.1).
func RemoveHopByHopHeaders(h http.Header) {
	for _, f := range h["Connection"] {
		for _, sf := range strings.Split(f, ",") {
			if sf = textproto.TrimString(sf); sf != "" {
				h.Del(sf)
			}
		}
	}
	for _, f := range hopHeaders {
		h.Del(f)
	}
}

// SanitizeRangeRequest prepares caller supplied fields for a ranged upstream
// request: hop-by-hop fields are dropped, as are fields that would change
// which bytes come back or how they are encoded.
func SanitizeRangeRequest(h http.Header) {
	RemoveHopByHopHeaders(h)
	for _, f := range rangeHeaders {
		h.Del(f)
	}
}
