package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/repositories"
)

// APIError is an error that carries the HTTP status and client-facing message.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// Wrap attaches the underlying cause to the error.
func (e *APIError) Wrap(err error) *APIError {
	e.Err = err
	return e
}

func newAPIError(status int, message string, details ...string) *APIError {
	return &APIError{StatusCode: status, Message: message, Errors: details}
}

// BadRequest builds a 400 error.
func BadRequest(message string, details ...string) *APIError {
	return newAPIError(http.StatusBadRequest, message, details...)
}

// Unauthorized builds a 401 error.
func Unauthorized(message string) *APIError {
	return newAPIError(http.StatusUnauthorized, message)
}

// NotFound builds a 404 error.
func NotFound(message string) *APIError {
	return newAPIError(http.StatusNotFound, message)
}

// Conflict builds a 409 error.
func Conflict(message string) *APIError {
	return newAPIError(http.StatusConflict, message)
}

// TooManyRequests builds a 429 error.
func TooManyRequests(message string) *APIError {
	return newAPIError(http.StatusTooManyRequests, message)
}

// ServerError builds a 500 error wrapping err.
func ServerError(message string, err error) *APIError {
	return newAPIError(http.StatusInternalServerError, message).Wrap(err)
}

// apiResponse is the success envelope.
type apiResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// errorResponse is the failure envelope.
type errorResponse struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
	Stack      []string `json:"stack,omitempty"`
}

// HandlerFunc is an HTTP handler that reports failures by returning them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Responder turns handler errors into error envelopes.
type Responder struct {
	// ExposeStack adds the error chain to responses. Disabled in production.
	ExposeStack bool
}

// Handle adapts fn to http.HandlerFunc, forwarding any returned error to the responder.
func (rs Responder) Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			rs.writeError(w, r, err)
		}
	}
}

func (rs Responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)

	logger := logging.FromContext(r.Context())
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("request failed", "status", apiErr.StatusCode, "message", apiErr.Message, "error", err)
	} else {
		logger.Warn("request rejected", "status", apiErr.StatusCode, "message", apiErr.Message, "error", err)
	}

	body := errorResponse{
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Message,
		Errors:     apiErr.Errors,
	}
	if body.Errors == nil {
		body.Errors = []string{}
	}
	if rs.ExposeStack {
		body.Stack = errorChain(err)
	}

	writeJSON(r.Context(), w, apiErr.StatusCode, body)
}

func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return newAPIError(http.StatusRequestEntityTooLarge, "Request body too large").Wrap(err)
	case errors.Is(err, repositories.ErrNotFound):
		return NotFound("Resource not found").Wrap(err)
	case errors.Is(err, auth.ErrUserNotFound):
		return NotFound("User not found").Wrap(err)
	case errors.Is(err, repositories.ErrConflict):
		return Conflict("Resource already exists").Wrap(err)
	default:
		return ServerError("Internal server error", err)
	}
}

func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}

func respond(ctx context.Context, w http.ResponseWriter, status int, data any, message string) error {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(ctx, w, status, apiResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
	return nil
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}
