package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ManuGH/mediad/internal/cast"
	"github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/media/reference"
)

const maxBodyBytes = 64 << 10

type castRequest struct {
	Ref string `json:"ref"`
}

type castStatus struct {
	Active  bool          `json:"active"`
	Session *cast.Session `json:"session,omitempty"`
}

// handleCastStart starts, or replaces, the cast server for a local file.
func (s *Server) handleCastStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cast == nil {
		unavailable(w, r, "casting")
		return
	}
	var req castRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Ref) == "" {
		RespondError(w, r, http.StatusBadRequest, "MISSING_REF", "ref is required")
		return
	}

	ref := reference.NormalizeFor(req.Ref, s.cfg.Platform)
	if ref.IsRemote() {
		RespondError(w, r, http.StatusBadRequest, "CAST_REMOTE_UNSUPPORTED", "only local files can be cast")
		return
	}

	session, err := s.deps.Cast.Start(r.Context(), ref.Path())
	if err != nil {
		if errors.Is(err, cast.ErrNotFound) {
			RespondError(w, r, http.StatusNotFound, "NOT_FOUND", "File not found")
			return
		}
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "cast.start_failed").Msg("cast server failed to start")
		RespondError(w, r, http.StatusInternalServerError, "CAST_FAILED", "could not start cast server")
		return
	}
	writeJSON(w, http.StatusCreated, castStatus{Active: true, Session: &session})
}

func (s *Server) handleCastStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cast == nil {
		unavailable(w, r, "casting")
		return
	}
	session, ok := s.deps.Cast.Status()
	if !ok {
		writeJSON(w, http.StatusOK, castStatus{})
		return
	}
	writeJSON(w, http.StatusOK, castStatus{Active: true, Session: &session})
}

func (s *Server) handleCastStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cast == nil {
		unavailable(w, r, "casting")
		return
	}
	if err := s.deps.Cast.Stop(r.Context()); err != nil {
		if errors.Is(err, cast.ErrNotRunning) {
			RespondError(w, r, http.StatusNotFound, "CAST_NOT_RUNNING", "no cast server running")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "CAST_FAILED", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads a bounded JSON body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		RespondError(w, r, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
