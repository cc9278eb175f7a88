// Package problem writes the JSON error body shared by the API and its
// middleware.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/mediad/internal/log"
)

// HeaderRequestID carries the request correlation ID.
const HeaderRequestID = "X-Request-ID"

// Body is the error payload returned on every failed API request.
type Body struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// Write writes status and a Body. The request ID is taken from the request
// context, falling back to the response header set by the RequestID middleware.
func Write(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	reqID := ""
	if r != nil {
		reqID = log.RequestIDFromContext(r.Context())
	}
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}
	if reqID != "" {
		w.Header().Set(HeaderRequestID, reqID)
	}

	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if r != nil && r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(Body{Code: code, Message: message, RequestID: reqID}); err != nil {
		log.L().Error().
			Err(err).
			Str("code", code).
			Int("status", status).
			Msg("failed to encode error response")
	}
}
