package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		size    int64
		want    Range
		wantErr error
	}{
		{name: "closed", header: "bytes=200-299", size: 1000, want: Range{200, 299}},
		{name: "open ended", header: "bytes=500-", size: 1000, want: Range{500, 999}},
		{name: "end clamped", header: "bytes=900-5000", size: 1000, want: Range{900, 999}},
		{name: "suffix", header: "bytes=-100", size: 1000, want: Range{900, 999}},
		{name: "suffix larger than file", header: "bytes=-5000", size: 1000, want: Range{0, 999}},
		{name: "single byte", header: "bytes=0-0", size: 1000, want: Range{0, 0}},
		{name: "case insensitive unit", header: "Bytes=1-2", size: 10, want: Range{1, 2}},
		{name: "start at size", header: "bytes=1000-", size: 1000, wantErr: ErrUnsatisfiableRange},
		{name: "start past size", header: "bytes=5000-6000", size: 1000, wantErr: ErrUnsatisfiableRange},
		{name: "end before start", header: "bytes=300-200", size: 1000, wantErr: ErrUnsatisfiableRange},
		{name: "empty resource", header: "bytes=0-", size: 0, wantErr: ErrUnsatisfiableRange},
		{name: "zero suffix", header: "bytes=-0", size: 1000, wantErr: ErrUnsatisfiableRange},
		{name: "multi range", header: "bytes=0-1,5-6", size: 1000, wantErr: ErrMalformedRange},
		{name: "wrong unit", header: "items=0-1", size: 1000, wantErr: ErrMalformedRange},
		{name: "no dash", header: "bytes=100", size: 1000, wantErr: ErrMalformedRange},
		{name: "garbage", header: "bytes=abc-def", size: 1000, wantErr: ErrMalformedRange},
		{name: "empty spec", header: "bytes=-", size: 1000, wantErr: ErrMalformedRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatContentRange(t *testing.T) {
	assert.Equal(t, "bytes 200-299/1000", FormatContentRange(Range{200, 299}, 1000))
	assert.Equal(t, "bytes */1000", Format416ContentRange(1000))
	assert.EqualValues(t, 100, Range{200, 299}.Length())
}
