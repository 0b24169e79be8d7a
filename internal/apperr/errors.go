package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError with a different public message.
func (e *AppError) WithMessage(msg string) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Message = msg
	return &cpy
}

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}
	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}
	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Service unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}
