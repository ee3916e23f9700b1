package httpapi

import (
	"net/http"

	"github.com/goccy/go-json"

	"genserve/internal/engine"
	"genserve/pkg/types"
)

// HTTPError allows an error to carry its own HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps a per-request failure to an HTTP status code.
func statusFor(err error) int {
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	if engine.IsUnavailable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}
