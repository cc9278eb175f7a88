package delivery

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/metrics"
)

// ErrNotFound means the local file is missing, unreadable or not a regular file.
var ErrNotFound = errors.New("media not found")

// ServeRange serves the file at path with single-range support. Missing
// files answer 404, malformed ranges fall back to the full body and
// unsatisfiable ranges answer 416. The returned error describes what went
// wrong, the response has already been written.
func ServeRange(w http.ResponseWriter, r *http.Request, path string) error {
	_, err := serveRange(w, r, path, xglog.WithComponentFromContext(r.Context(), "delivery"))
	return err
}

func serveRange(w http.ResponseWriter, r *http.Request, path string, logger zerolog.Logger) (int, error) {
	// #nosec G304 -- serving operator-selected media files is the purpose of this server
	f, err := os.Open(path)
	if err != nil {
		writeNotFound(w)
		return http.StatusNotFound, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeNotFound(w)
		if err == nil {
			err = errors.New("not a regular file")
		}
		return http.StatusNotFound, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	size := info.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(extensionOf(path), f))

	header := r.Header.Get("Range")
	if header != "" {
		rng, perr := ParseRange(header, size)
		switch {
		case perr == nil:
			return servePartial(w, r, f, rng, size)
		case errors.Is(perr, ErrUnsatisfiableRange):
			h.Set("Content-Range", Format416ContentRange(size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return http.StatusRequestedRangeNotSatisfiable, perr
		default:
			logger.Debug().Str("range", header).Str(xglog.FieldPath, path).Msg("malformed range, serving full body")
		}
	}

	h.Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return http.StatusOK, nil
	}
	n, err := io.CopyN(w, f, size)
	metrics.RangeBytesServed.WithLabelValues("full").Add(float64(n))
	if err != nil {
		return http.StatusOK, fmt.Errorf("copy body: %w", err)
	}
	return http.StatusOK, nil
}

func servePartial(w http.ResponseWriter, r *http.Request, f *os.File, rng Range, size int64) (int, error) {
	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		http.Error(w, "seek failed", http.StatusInternalServerError)
		return http.StatusInternalServerError, fmt.Errorf("seek: %w", err)
	}

	h := w.Header()
	h.Set("Content-Range", FormatContentRange(rng, size))
	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return http.StatusPartialContent, nil
	}

	n, err := io.CopyN(w, f, rng.Length())
	metrics.RangeBytesServed.WithLabelValues("partial").Add(float64(n))
	if err != nil {
		return http.StatusPartialContent, fmt.Errorf("copy range: %w", err)
	}
	return http.StatusPartialContent, nil
}

func writeNotFound(w http.ResponseWriter) {
	http.Error(w, "File not found", http.StatusNotFound)
}

func extensionOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case '.':
			return path[i+1:]
		case '/', '\\':
			return ""
		}
	}
	return ""
}
