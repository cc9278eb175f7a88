// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/mediad/internal/api/problem"
	"github.com/ManuGH/mediad/internal/log"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Debug().Err(err).Msg("failed to encode JSON response")
	}
}

// RespondError writes the JSON error body {"code","message","requestId"}.
// Its signature matches delivery.ErrorWriter so the dispatcher renders its
// failures the same way as the rest of the API.
func RespondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	problem.Write(w, r, status, code, message)
}
