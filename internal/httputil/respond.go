// Package httputil holds the gateway's uniform response envelope and small
// request helpers shared by handlers and middleware.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error body for every failure kind.
type ErrorResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// DataResponse wraps successful payloads.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// WriteError emits the uniform error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, message string, errs ...string) {
	if errs == nil {
		errs = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Message: message,
		Errors:  errs,
	})
}

// WriteData emits a success envelope with the given status.
func WriteData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(DataResponse{Success: true, Data: data})
}
