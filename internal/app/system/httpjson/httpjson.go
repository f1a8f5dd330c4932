// internal/app/system/httpjson/httpjson.go
package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/limits"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes payload as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes {"status":"success","data":...}.
func OK(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, envelope{Status: statusSuccess, Data: data})
}

// Message writes {"status":"success","message":...}.
func Message(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, envelope{Status: statusSuccess, Message: msg})
}

// Fail writes a client error envelope without going through apperr.
func Fail(w http.ResponseWriter, status int, msg string) {
	s := statusFail
	if status >= 500 {
		s = statusError
	}
	WriteJSON(w, status, envelope{Status: s, Message: msg})
}

// WriteError classifies err and writes the matching envelope. Server-side
// failures are logged with the request path; their details never reach
// the client.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status, msg := apperr.Public(err)
	code := ""
	var ae *apperr.Error
	if errors.As(err, &ae) {
		code = ae.Code
	}
	if status >= 500 && log != nil {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	s := statusFail
	if status >= 500 {
		s = statusError
	}
	WriteJSON(w, status, envelope{Status: s, Message: msg, Code: code})
}

// DecodeJSON decodes the request body into dst. Unknown fields are rejected.
// Decode failures come back as apperr validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limits.MaxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required")
		}
		return apperr.Validation("Invalid JSON body")
	}
	return nil
}
