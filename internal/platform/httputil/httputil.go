// Package httputil holds the JSON response envelope and error-writing
// helpers every NAAS handler shares, so a single place maps dErrors.Code
// onto the status/body shape spec.md §6/§7 require.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"naas/pkg/dErrors"
)

// ServiceName and ServiceVersion populate the {app, version} pair spec.md
// §6 requires on every response body.
const (
	ServiceName    = "naas"
	ServiceVersion = "1.0.0"
)

// Base is embedded in every response DTO.
type Base struct {
	App     string `json:"app"`
	Version string `json:"version"`
}

// NewBase returns the current service identity pair.
func NewBase() Base {
	return Base{App: ServiceName, Version: ServiceVersion}
}

// WriteJSON writes body as status with the standard JSON content type.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ErrorResponse is the envelope every non-2xx NAAS response uses.
type ErrorResponse struct {
	Base
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError maps err onto its dErrors.Code and writes the matching status
// and body. Internal errors omit ErrorDescription so implementation detail
// never leaks to a caller.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	resp := ErrorResponse{Base: NewBase(), Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			resp.ErrorDescription = de.Message
		} else {
			resp.ErrorDescription = err.Error()
		}
	}

	WriteJSON(w, status, resp)
}
