package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, r *http.Request, code int, message string) {
	JSON(w, r, code, ErrorBody{Error: message})
}

// ErrorWithDetails adds a machine-readable details object, e.g. a cycle path
// or the versions of a failed optimistic write.
func ErrorWithDetails(w http.ResponseWriter, r *http.Request, code int, message string, details any) {
	JSON(w, r, code, ErrorBody{Error: message, Details: details})
}
