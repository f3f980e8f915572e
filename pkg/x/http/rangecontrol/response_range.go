package rangecontrol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Content-Range response header, RFC 9110 section 14.4:
//
//	Content-Range: bytes 0-99/1000
//	Content-Range: bytes 200-299/*
//	Content-Range: bytes */1000

var ErrInvalidContentRange = errors.New("invalid Content-Range")

// ContentRange is a parsed Content-Range value. Size is -1 when the server
// does not know the complete length.
type ContentRange struct {
	Start       int64
	End         int64
	Size        int64
	Unsatisfied bool // "*/size", sent with 416
}

// Served returns the number of bytes the response body carries.
func (c *ContentRange) Served() int64 {
	if c.Unsatisfied {
		return 0
	}
	return c.End - c.Start + 1
}

// String renders the header value.
func (c *ContentRange) String() string {
	size := "*"
	if c.Size >= 0 {
		size = strconv.FormatInt(c.Size, 10)
	}
	if c.Unsatisfied {
		return "bytes */" + size
	}
	return fmt.Sprintf("bytes %d-%d/%s", c.Start, c.End, size)
}

func ParseContentRange(header string) (*ContentRange, error) {
	unit, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || unit != "bytes" {
		return nil, ErrInvalidContentRange
	}

	rng, sizeStr, ok := strings.Cut(value, "/")
	if !ok {
		return nil, ErrInvalidContentRange
	}

	size := int64(-1)
	if sizeStr != "*" {
		n, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil || n < 0 {
			return nil, ErrInvalidContentRange
		}
		size = n
	}

	if rng == "*" {
		if size < 0 {
			return nil, ErrInvalidContentRange
		}
		return &ContentRange{Size: size, Unsatisfied: true}, nil
	}

	startStr, endStr, ok := strings.Cut(rng, "-")
	if !ok {
		return nil, ErrInvalidContentRange
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, ErrInvalidContentRange
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return nil, ErrInvalidContentRange
	}
	if size >= 0 && end >= size {
		return nil, ErrInvalidContentRange
	}

	return &ContentRange{Start: start, End: end, Size: size}, nil
}
