package rangecontrol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrRangeHeaderNotFound = errors.New("header Range not found")
	ErrInvalidRange        = errors.New("invalid Range header")
)

const unbounded int64 = -1

// ByteRange is an inclusive byte range. End is -1 for an open-ended range (100-).
type ByteRange struct {
	Start int64
	End   int64
}

// FromSpan converts a position and byte count into a range. A negative
// length yields an open-ended range.
func FromSpan(position, length int64) ByteRange {
	if length < 0 {
		return ByteRange{Start: position, End: unbounded}
	}
	return ByteRange{Start: position, End: position + length - 1}
}

func (r ByteRange) OpenEnded() bool {
	return r.End < 0
}

// Length returns the byte count, or -1 when open-ended.
func (r ByteRange) Length() int64 {
	if r.OpenEnded() {
		return unbounded
	}
	return r.End - r.Start + 1
}

// String renders the Range request header value.
func (r ByteRange) String() string {
	if r.OpenEnded() {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Parse parses a Range header. Suffix ranges (-500) need the total size and
// are rejected.
func Parse(rangeHeader string) ([]ByteRange, error) {
	if rangeHeader == "" {
		return nil, nil
	}

	raw, ok := strings.CutPrefix(rangeHeader, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}

	parts := strings.Split(raw, ",")
	ranges := make([]ByteRange, 0, len(parts))
	for _, part := range parts {
		r, err := ParseSpec(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// ParseSpec parses one range spec without the unit, e.g. "0-499" or "100-".
func ParseSpec(spec string) (ByteRange, error) {
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || startStr == "" {
		return ByteRange{}, ErrInvalidRange
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, ErrInvalidRange
	}

	if endStr == "" {
		return ByteRange{Start: start, End: unbounded}, nil
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return ByteRange{}, fmt.Errorf("%w: %s", ErrInvalidRange, spec)
	}
	return ByteRange{Start: start, End: end}, nil
}
