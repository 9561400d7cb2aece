package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// Session payloads carry credentials and must never be cached.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// ErrorBody is the auth service's error response.
type ErrorBody struct {
	Error            string              `json:"error"`
	Message          string              `json:"message,omitempty"`
	Status           int                 `json:"status"`
	ValidationErrors map[string][]string `json:"validationErrors,omitempty"`
}

// WriteError writes an ErrorBody.
func WriteError(w http.ResponseWriter, code int, errText, message string) {
	WriteJSON(w, code, ErrorBody{Error: errText, Message: message, Status: code})
}

// WriteValidationError writes a 400 listing the problems per field.
func WriteValidationError(w http.ResponseWriter, fields map[string][]string) {
	WriteJSON(w, http.StatusBadRequest, ErrorBody{
		Error:            "Validation failed",
		Status:           http.StatusBadRequest,
		ValidationErrors: fields,
	})
}
