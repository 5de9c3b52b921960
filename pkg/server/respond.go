package server

import (
	"encoding/json"
	"net/http"
)

// errorBody is the uniform error envelope returned to clients.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code, details string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code, Details: details})
}
