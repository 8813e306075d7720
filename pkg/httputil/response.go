package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// ErrorResponse is the body of every non-2xx response.
// Detail is only populated when detailed errors are enabled.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}

// MessageResponse is the body of a 2xx response that carries no payload
// besides a human readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

var exposeDetails atomic.Bool

// SetDetailedErrors controls whether 5xx responses include the wrapped error
// chain. Enable it outside production only.
func SetDetailedErrors(enabled bool) {
	exposeDetails.Store(enabled)
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage writes {"message": msg}.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, MessageResponse{Message: msg})
}

// WriteError writes a standardized error response based on the error type.
// It prefers the request-scoped logger from context (set by the RequestLogger
// middleware) over the fallback logger, and logs every 5xx.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	resp := ErrorResponse{
		Error:     "an internal error occurred",
		Code:      "INTERNAL_ERROR",
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}
	status := apperrors.HTTPStatus(err)

	var appErr *apperrors.AppError
	var valErr *validator.ValidationError
	switch {
	case errors.As(err, &appErr):
		resp.Error = appErr.Message
		resp.Code = appErr.Code
		resp.Fields = appErr.Fields
	case errors.As(err, &valErr):
		resp.Error = "request validation failed"
		resp.Code = "VALIDATION_ERROR"
		resp.Fields = valErr.Fields()
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		resp.Error = "resource not found"
		resp.Code = "NOT_FOUND"
	case errors.Is(err, apperrors.ErrInvalidInput):
		resp.Error = err.Error()
		resp.Code = "INVALID_INPUT"
	case errors.Is(err, apperrors.ErrUnauthorized):
		resp.Error = "unauthorized"
		resp.Code = "UNAUTHORIZED"
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		if exposeDetails.Load() {
			resp.Detail = err.Error()
		}
	}

	WriteJSON(w, status, resp)
}

// WriteValidationError writes a 400 with field-level messages when err is a
// *validator.ValidationError, or with err's text otherwise.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "request validation failed",
			Code:   "VALIDATION_ERROR",
			Fields: valErr.Fields(),
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_INPUT"})
}

// ParseUUID validates that the given string is a valid UUID and returns it.
// If invalid, it writes a 400 Bad Request response with code INVALID_PARAMETER
// and returns uuid.Nil plus false, signaling the caller to return early.
func ParseUUID(w http.ResponseWriter, name, value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid " + name + ": " + value,
			Code:  "INVALID_PARAMETER",
		})
		return uuid.Nil, false
	}
	return id, true
}
