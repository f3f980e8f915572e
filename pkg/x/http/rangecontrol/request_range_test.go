package rangecontrol

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    []ByteRange
		wantErr bool
	}{
		{"empty header", "", nil, false},
		{"valid single closed", "bytes=0-499", []ByteRange{{Start: 0, End: 499}}, false},
		{"valid multiple", "bytes=0-0, 1-1", []ByteRange{{Start: 0, End: 0}, {Start: 1, End: 1}}, false},
		{"open-ended", "bytes=100-", []ByteRange{{Start: 100, End: -1}}, false},
		{"spaces and multiple", "bytes=0-10,20-30", []ByteRange{{Start: 0, End: 10}, {Start: 20, End: 30}}, false},
		{"invalid prefix", "byt=0-1", nil, true},
		{"suffix-range not supported", "bytes=-500", nil, true},
		{"no dash", "bytes=500", nil, true},
		{"non-numeric start", "bytes=a-5", nil, true},
		{"end less than start", "bytes=10-5", nil, true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestByteRange_String(t *testing.T) {
	tests := []struct {
		name     string
		position int64
		length   int64
		want     string
		wantLen  int64
	}{
		{"closed from zero", 0, 1000, "bytes=0-999", 1000},
		{"closed mid", 500, 200, "bytes=500-699", 200},
		{"open from zero", 0, -1, "bytes=0-", -1},
		{"open mid", 750, -1, "bytes=750-", -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := FromSpan(tc.position, tc.length)
			if got := r.String(); got != tc.want {
				t.Errorf("String() = %v, want %v", got, tc.want)
			}
			if got := r.Length(); got != tc.wantLen {
				t.Errorf("Length() = %v, want %v", got, tc.wantLen)
			}
		})
	}
}

func TestParseSpec(t *testing.T) {
	r, err := ParseSpec("100-199")
	if err != nil || r != (ByteRange{Start: 100, End: 199}) {
		t.Fatalf("got %#v, %v", r, err)
	}
	if _, err = ParseSpec("-5"); err == nil {
		t.Fatal("expected error for suffix range")
	}
}
