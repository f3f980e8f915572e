package rangecontrol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    *ContentRange
		wantErr bool
	}{
		{"known size", "bytes 0-99/1000", &ContentRange{Start: 0, End: 99, Size: 1000}, false},
		{"unknown size", "bytes 200-299/*", &ContentRange{Start: 200, End: 299, Size: -1}, false},
		{"last byte", "bytes 999-999/1000", &ContentRange{Start: 999, End: 999, Size: 1000}, false},
		{"unsatisfied", "bytes */1000", &ContentRange{Size: 1000, Unsatisfied: true}, false},
		{"surrounding space", "  bytes 0-49/100  ", &ContentRange{Start: 0, End: 49, Size: 100}, false},
		{"empty", "", nil, true},
		{"no space", "bytes0-9/10", nil, true},
		{"other unit", "items 0-9/10", nil, true},
		{"no slash", "bytes 0-9", nil, true},
		{"end past size", "bytes 0-100/100", nil, true},
		{"end before start", "bytes 10-9/100", nil, true},
		{"negative start", "bytes -1-9/100", nil, true},
		{"unsatisfied unknown size", "bytes */*", nil, true},
		{"bad size", "bytes 0-9/ten", nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseContentRange(tc.header)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidContentRange)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestContentRangeAnswersRequest(t *testing.T) {
	const size = 1000

	tests := []struct {
		name     string
		position int64
		length   int64
		header   string
		served   int64
	}{
		{"closed", 100, 200, "bytes 100-299/1000", 200},
		{"open ended", 100, -1, "bytes 100-999/1000", 900},
		{"whole", 0, -1, "bytes 0-999/1000", 1000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := FromSpan(tc.position, tc.length)
			end := req.End
			if req.OpenEnded() {
				end = size - 1
			}

			cr := &ContentRange{Start: req.Start, End: end, Size: size}
			assert.Equal(t, tc.header, cr.String())

			parsed, err := ParseContentRange(cr.String())
			require.NoError(t, err)
			assert.Equal(t, cr, parsed)
			assert.Equal(t, tc.served, parsed.Served())
		})
	}
}

func TestContentRangeString(t *testing.T) {
	assert.Equal(t, "bytes 0-9/*", (&ContentRange{Start: 0, End: 9, Size: -1}).String())
	assert.Equal(t, "bytes */50", (&ContentRange{Size: 50, Unsatisfied: true}).String())
	assert.Equal(t, int64(0), (&ContentRange{Size: 50, Unsatisfied: true}).Served())
}
