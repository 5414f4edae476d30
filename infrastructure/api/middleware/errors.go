package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ragmag/ragmag/application/service"
	"github.com/ragmag/ragmag/domain/document"
	"github.com/ragmag/ragmag/infrastructure/parser"
	"github.com/ragmag/ragmag/infrastructure/provider"
	"github.com/ragmag/ragmag/internal/database"
)

// APIError is a handler-level error carrying an explicit HTTP status.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates an APIError.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{code: code, message: message, cause: cause}
}

// Code returns the HTTP status code.
func (e *APIError) Code() int { return e.code }

// Message returns the response message.
func (e *APIError) Message() string { return e.message }

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error { return e.cause }

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	ID     string `json:"id,omitempty"`
}

// ErrorBody wraps error responses.
type ErrorBody struct {
	Errors []ErrorResponse `json:"errors"`
}

// WriteError maps an error to a status code and writes the JSON error
// body. Unknown errors become 500; upstream AI and parsing failures
// become 502 so clients can tell them apart from local faults.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status := http.StatusInternalServerError
	title := "Internal Server Error"
	detail := err.Error()

	var apiErr *APIError
	var maxBytesErr *http.MaxBytesError
	var providerErr *provider.ProviderError

	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Code()
		title = http.StatusText(apiErr.Code())
		detail = apiErr.Message()
	case errors.As(err, &maxBytesErr):
		status = http.StatusRequestEntityTooLarge
		title = "Upload Too Large"
	case errors.Is(err, document.ErrNotFound),
		errors.Is(err, database.ErrNotFound),
		errors.Is(err, service.ErrTaskNotFound):
		status = http.StatusNotFound
		title = "Not Found"
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, document.ErrNoFragments):
		status = http.StatusBadRequest
		title = "Validation Error"
	case errors.As(err, &providerErr),
		errors.Is(err, provider.ErrNotConfigured),
		errors.Is(err, parser.ErrParseFailed):
		status = http.StatusBadGateway
		title = "Upstream Service Error"
	}

	requestID := chimiddleware.GetReqID(r.Context())
	if logger != nil {
		logger.Error("request error",
			slog.String("request_id", requestID),
			slog.Int("status", status),
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path))
	}

	WriteJSON(w, status, ErrorBody{
		Errors: []ErrorResponse{{
			Status: http.StatusText(status),
			Title:  title,
			Detail: detail,
			ID:     requestID,
		}},
	})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
