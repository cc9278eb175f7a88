package api

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/ManuGH/mediad/internal/library"
	"github.com/ManuGH/mediad/internal/log"
)

type watchRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	if s.deps.Library == nil {
		unavailable(w, r, "library")
		return
	}
	watches, err := s.deps.Library.Watches(r.Context())
	if err != nil {
		s.libraryError(w, r, err)
		return
	}
	if watches == nil {
		watches = []library.Watch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"watches": watches})
}

func (s *Server) handleAddWatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Library == nil {
		unavailable(w, r, "library")
		return
	}
	var req watchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		RespondError(w, r, http.StatusBadRequest, "MISSING_PATH", "path is required")
		return
	}
	if err := s.deps.Library.Add(r.Context(), req.Path); err != nil {
		s.libraryError(w, r, err)
		return
	}
	root, err := library.CanonicalPath(req.Path)
	if err != nil {
		root = req.Path
	}
	writeJSON(w, http.StatusCreated, watchRequest{Path: root})
}

func (s *Server) handleRemoveWatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Library == nil {
		unavailable(w, r, "library")
		return
	}
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		RespondError(w, r, http.StatusBadRequest, "MISSING_PATH", "query parameter path is required")
		return
	}
	if err := s.deps.Library.Remove(r.Context(), path); err != nil {
		s.libraryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	if s.deps.Library == nil {
		unavailable(w, r, "library")
		return
	}
	items, err := s.deps.Library.Items(r.Context(), strings.TrimSpace(r.URL.Query().Get("dir")))
	if err != nil {
		s.libraryError(w, r, err)
		return
	}
	if items == nil {
		items = []library.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) libraryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, library.ErrNotWatched):
		RespondError(w, r, http.StatusNotFound, "NOT_WATCHED", err.Error())
	case errors.Is(err, library.ErrNotDirectory):
		RespondError(w, r, http.StatusBadRequest, "NOT_A_DIRECTORY", err.Error())
	case errors.Is(err, fs.ErrNotExist):
		RespondError(w, r, http.StatusNotFound, "NOT_FOUND", "directory not found")
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "library.request_failed").Msg("library request failed")
		RespondError(w, r, http.StatusInternalServerError, "LIBRARY_FAILED", "library operation failed")
	}
}
