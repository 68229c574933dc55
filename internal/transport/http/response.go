package httptransport

import (
	"encoding/json"
	"net/http"

	"postpilot/internal/service"
)

// apiError carries an optional field name so intake validation failures tell
// the caller which part of the request to fix.
type apiError struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

func writeValidationErr(w http.ResponseWriter, vErr *service.ValidationError) {
	writeJSON(w, http.StatusBadRequest, apiError{Message: vErr.Error(), Field: vErr.Field})
}
