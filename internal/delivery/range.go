package delivery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRange means the Range header could not be parsed; the
	// full resource is served instead.
	ErrMalformedRange = errors.New("malformed range")
	// ErrUnsatisfiableRange means the range lies outside the resource.
	ErrUnsatisfiableRange = errors.New("range not satisfiable")
)

// Range represents a byte range [Start, End] (inclusive).
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ParseRange parses a single-range "Range" header against a resource of
// size bytes. An omitted end means end-of-resource and an end beyond the
// resource is clamped. Multi-range requests are treated as malformed.
func ParseRange(header string, size int64) (Range, error) {
	spec := strings.TrimSpace(header)
	if len(spec) < len("bytes=") || !strings.EqualFold(spec[:len("bytes=")], "bytes=") {
		return Range{}, ErrMalformedRange
	}
	spec = spec[len("bytes="):]
	if strings.Contains(spec, ",") {
		return Range{}, ErrMalformedRange
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return Range{}, ErrMalformedRange
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		// Suffix range: bytes=-500 (last 500 bytes)
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return Range{}, ErrMalformedRange
		}
		if n == 0 || size == 0 {
			return Range{}, ErrUnsatisfiableRange
		}
		if n > size {
			n = size
		}
		return Range{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return Range{}, ErrMalformedRange
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return Range{}, ErrMalformedRange
		}
	}

	if start >= size || end < start {
		return Range{}, ErrUnsatisfiableRange
	}
	if end >= size {
		end = size - 1
	}
	return Range{Start: start, End: end}, nil
}

// FormatContentRange formats the Content-Range header.
func FormatContentRange(r Range, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Format416ContentRange formats the Content-Range header for a 416 response.
func Format416ContentRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}
