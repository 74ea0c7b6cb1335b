package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
	"github.com/nerrad567/gray-logic-gluehome/internal/entity"
	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "service_unavailable"
	ErrCodeUpstreamAuth     = "upstream_auth"
	ErrCodeUpstream         = "upstream_error"
	ErrCodeOperationFailed  = "operation_failed"
	ErrCodeRequestCancelled = "request_cancelled"
	ErrCodeUnauthorized     = "unauthorized"
)

// statusClientClosedRequest is the de facto status for requests the client
// abandoned before a response was ready.
const statusClientClosedRequest = 499

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUpstreamError maps an error from the cloud or a lock command to a
// response.
func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrLockNotFound):
		writeNotFound(w, "lock not found")
	case errors.Is(err, operation.ErrInvalidAction):
		writeBadRequest(w, err.Error())
	case errors.Is(err, cloud.ErrInvalidAuth):
		writeError(w, http.StatusBadGateway, ErrCodeUpstreamAuth, "Glue Home rejected the API key")
	case operation.IsFailed(err):
		writeError(w, http.StatusConflict, ErrCodeOperationFailed, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, statusClientClosedRequest, ErrCodeRequestCancelled, "request cancelled")
	default:
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	}
}
