package common

import (
	"errors"
	"net/http"
)

// ErrValidation marks input that was rejected before any side effect.
var ErrValidation = errors.New("validation failed")

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation builds a 400 AppError wrapping ErrValidation.
func Validation(message string, details any) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        ErrValidation,
		Details:    details,
	}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// CodedError is implemented by domain errors that know how they render over HTTP.
type CodedError interface {
	error
	ErrorCode() string
	StatusCode() int
}

// DetailedError optionally exposes structured details alongside a CodedError.
type DetailedError interface {
	ErrorDetails() any
}

// WriteError renders err using the canonical error shape. Unknown errors are
// reported as 500 without leaking their text.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	var coded CodedError
	if errors.As(err, &coded) {
		var details any
		if d, ok := coded.(DetailedError); ok {
			details = d.ErrorDetails()
		}
		JSONError(w, coded.StatusCode(), coded.ErrorCode(), coded.Error(), details)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
