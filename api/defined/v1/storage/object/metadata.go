package object

import "sort"

// Span is one committed byte range of an object.
type Span struct {
	Position int64  `json:"position" msgpack:"position"`
	Length   int64  `json:"length" msgpack:"length"`
	Bucket   string `json:"bucket" msgpack:"bucket"`
}

func (s Span) End() int64 {
	return s.Position + s.Length
}

// Metadata is the persisted index record of one key.
type Metadata struct {
	Key       string `json:"key" msgpack:"key"`
	Length    int64  `json:"length" msgpack:"length"`     // -1 until discovered
	Redirect  string `json:"redirect" msgpack:"redirect"` // resolved locator
	Spans     []Span `json:"spans" msgpack:"spans"`
	CreatedAt int64  `json:"created_at" msgpack:"created_at"`
	UpdatedAt int64  `json:"updated_at" msgpack:"updated_at"`
}

func (m *Metadata) ID() *ID {
	return NewID(m.Key)
}

// CachedSize sums the span lengths.
func (m *Metadata) CachedSize() int64 {
	var n int64
	for _, s := range m.Spans {
		n += s.Length
	}
	return n
}

// SortSpans orders spans by position.
func (m *Metadata) SortSpans() {
	sort.Slice(m.Spans, func(i, j int) bool {
		return m.Spans[i].Position < m.Spans[j].Position
	})
}
