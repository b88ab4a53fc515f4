// Package errors defines AppError, the error type handlers render as
// {"code","message"} responses, and the Elevate error codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured application error with HTTP status and error code.
type AppError struct {
	// Code is a machine-readable error code (e.g., "ROLE_ACTIVATION_FAILED").
	Code string `json:"code"`

	Message string `json:"message"`

	HTTPStatus int `json:"-"`

	// Params carries structured context for API consumers, e.g. the
	// underlying code of a failed refresh.
	Params map[string]interface{} `json:"params,omitempty"`

	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError without a cause.
func New(code, message string, httpStatus int) *AppError {
	return Wrap(nil, code, message, httpStatus)
}

// Wrap records err as the cause of a new AppError.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// BadRequest creates a 400 error.
func BadRequest(code, message string) *AppError {
	return New(code, message, http.StatusBadRequest)
}

// Forbidden creates a 403 error.
func Forbidden(code, message string) *AppError {
	return New(code, message, http.StatusForbidden)
}

// Conflict creates a 409 error.
func Conflict(code, message string) *AppError {
	return New(code, message, http.StatusConflict)
}

// BadGateway wraps an upstream failure as a 502 error.
func BadGateway(err error, code, message string) *AppError {
	return Wrap(err, code, message, http.StatusBadGateway)
}

// Message returns the human-readable message for err: the AppError message
// (with its cause) when err is an AppError, err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := IsAppError(err); ok {
		if appErr.Err != nil {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
		}
		return appErr.Message
	}
	return err.Error()
}

// IsAppError reports whether err wraps an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
