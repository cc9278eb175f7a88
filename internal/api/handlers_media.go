package api

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/ManuGH/mediad/internal/delivery"
	"github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/media/reference"
	platformnet "github.com/ManuGH/mediad/internal/platform/net"
)

// mediaScheme is the wrapper scheme the /media/ route stands in for.
const mediaScheme = "media://"

// handleMedia serves GET/HEAD /media/<payload>. The raw reference is the
// wrapper scheme followed by the still-escaped payload and query, exactly as
// the custom protocol handler would have received it.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		unavailable(w, r, "playback")
		return
	}
	payload := strings.TrimPrefix(r.URL.EscapedPath(), "/media/")
	raw := mediaScheme + payload
	if r.URL.RawQuery != "" {
		raw += "?" + r.URL.RawQuery
	}
	s.deps.Player.ServeReference(w, r, raw)
}

// handlePlay serves GET/HEAD /api/v1/play?ref=<raw>.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		unavailable(w, r, "playback")
		return
	}
	raw, ok := requireRef(w, r)
	if !ok {
		return
	}
	s.deps.Player.ServeReference(w, r, raw)
}

// handleResolve explains how a reference would be delivered without serving it.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		unavailable(w, r, "playback")
		return
	}
	raw, ok := requireRef(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Player.Resolve(r.Context(), raw)
	if err != nil {
		if errors.Is(err, delivery.ErrNotFound) {
			RespondError(w, r, http.StatusNotFound, "NOT_FOUND", "File not found")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "RESOLVE_FAILED", err.Error())
		return
	}
	w.Header().Set("X-Delivery-Decision", delivery.FormatDecisionHeader(res.Decision))
	writeJSON(w, http.StatusOK, res)
}

// handleProbe runs the codec prober on a reference and returns its streams.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prober == nil {
		unavailable(w, r, "probing")
		return
	}
	raw, ok := requireRef(w, r)
	if !ok {
		return
	}
	ref := reference.NormalizeFor(raw, s.cfg.Platform)
	if !ref.IsRemote() {
		if info, err := os.Stat(ref.Path()); err != nil || !info.Mode().IsRegular() {
			RespondError(w, r, http.StatusNotFound, "NOT_FOUND", "File not found")
			return
		}
	}

	res, err := s.deps.Prober.Probe(r.Context(), ref)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "probe.failed").
			Str(log.FieldReference, platformnet.SanitizeURL(ref.String())).
			Msg("probe failed")
		RespondError(w, r, http.StatusBadGateway, "PROBE_FAILED", "could not inspect media")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func requireRef(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("ref"))
	if raw == "" {
		RespondError(w, r, http.StatusBadRequest, "MISSING_REF", "query parameter ref is required")
		return "", false
	}
	return raw, true
}
