package storage

import (
	"sort"

	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/storage/object"
)

// hole is a locked byte range [position, end); end is LengthUnset when open.
type hole struct {
	handle   storage.Handle
	key      string
	position int64
	end      int64
}

func (h *hole) overlaps(position, end int64) bool {
	if h.end != storage.LengthUnset && h.end <= position {
		return false
	}
	if end != storage.LengthUnset && end <= h.position {
		return false
	}
	return true
}

func (h *hole) contains(position int64) bool {
	return h.position <= position && (h.end == storage.LengthUnset || position < h.end)
}

// content is the in-memory state of one key. Spans are sorted and disjoint.
type content struct {
	id        *object.ID
	meta      storage.ContentMetadata
	spans     []object.Span
	holes     map[storage.Handle]*hole
	createdAt int64
}

func newContent(key string) *content {
	return &content{
		id:    object.NewID(key),
		meta:  storage.ContentMetadata{Length: storage.LengthUnset},
		holes: make(map[storage.Handle]*hole),
	}
}

// search returns the index of the first span starting after position.
func (c *content) search(position int64) int {
	return sort.Search(len(c.spans), func(i int) bool {
		return c.spans[i].Position > position
	})
}

func (c *content) spanAt(position int64) (object.Span, bool) {
	i := c.search(position)
	if i == 0 {
		return object.Span{}, false
	}
	sp := c.spans[i-1]
	if position < sp.End() {
		return sp, true
	}
	return object.Span{}, false
}

// nextSpanStart returns the start of the first span after position, or
// LengthUnset when none follows.
func (c *content) nextSpanStart(position int64) int64 {
	i := c.search(position)
	if i == len(c.spans) {
		return storage.LengthUnset
	}
	return c.spans[i].Position
}

// nextHoleStart returns the start of the nearest hole above position, or
// LengthUnset when none follows.
func (c *content) nextHoleStart(position int64) int64 {
	next := storage.LengthUnset
	for _, h := range c.holes {
		if h.position > position && (next == storage.LengthUnset || h.position < next) {
			next = h.position
		}
	}
	return next
}

func (c *content) locked(position, end int64) bool {
	for _, h := range c.holes {
		if h.overlaps(position, end) {
			return true
		}
	}
	return false
}

func (c *content) holds(position int64) bool {
	for _, h := range c.holes {
		if h.contains(position) {
			return true
		}
	}
	return false
}

// insertSpan adds sp keeping order. It reports false when sp overlaps a span.
func (c *content) insertSpan(sp object.Span) bool {
	i := c.search(sp.Position)
	if i > 0 && c.spans[i-1].End() > sp.Position {
		return false
	}
	if i < len(c.spans) && c.spans[i].Position < sp.End() {
		return false
	}
	c.spans = append(c.spans, object.Span{})
	copy(c.spans[i+1:], c.spans[i:])
	c.spans[i] = sp
	return true
}

func (c *content) removeSpan(position int64) {
	for i, sp := range c.spans {
		if sp.Position == position {
			c.spans = append(c.spans[:i], c.spans[i+1:]...)
			return
		}
	}
}

// cachedBytes sums the overlap of spans with [position, end).
func (c *content) cachedBytes(position, end int64) int64 {
	var n int64
	for _, sp := range c.spans {
		lo := max(sp.Position, position)
		hi := sp.End()
		if end != storage.LengthUnset {
			hi = min(hi, end)
		}
		if hi > lo {
			n += hi - lo
		}
	}
	return n
}

// empty reports nothing worth keeping in memory.
func (c *content) empty() bool {
	return len(c.spans) == 0 && len(c.holes) == 0 &&
		c.meta.Length == storage.LengthUnset && c.meta.Redirect == ""
}

func (c *content) metadata(now int64) *object.Metadata {
	spans := make([]object.Span, len(c.spans))
	copy(spans, c.spans)
	return &object.Metadata{
		Key:       c.id.Key(),
		Length:    c.meta.Length,
		Redirect:  c.meta.Redirect,
		Spans:     spans,
		CreatedAt: c.createdAt,
		UpdatedAt: now,
	}
}
