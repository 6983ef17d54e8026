// Package httputil provides JSON request and response helpers for handlers.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/R3E-Network/factory_os/internal/errors"
	"github.com/R3E-Network/factory_os/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"trace_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes data as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes the standard error body.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, ErrorResponse{
		ErrorCode: code,
		Message:   message,
		TraceID:   TraceID(r),
		Details:   details,
	})
}

// WriteServiceError writes err using its ServiceError status and code.
// Errors that are not ServiceErrors are reported as internal errors.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("", err)
	}
	WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}

// TraceID returns the request id from the context, falling back to the
// inbound header.
func TraceID(r *http.Request) string {
	if r == nil {
		return ""
	}
	if id := logging.GetTraceID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(RequestIDHeader)
}

// DecodeJSON decodes a single JSON object from body, rejecting unknown fields.
func DecodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// DecodeJSONLenient decodes a single JSON object from body, ignoring fields
// dst does not declare.
func DecodeJSONLenient(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	return json.NewDecoder(body).Decode(dst)
}
