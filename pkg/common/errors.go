package common

import (
	"errors"
	"net/http"
)

// Common error types
var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
	ErrConflict       = errors.New("resource conflict")
	ErrValidation     = errors.New("validation error")
	ErrUnavailable    = errors.New("upstream unavailable")
)

// AppError represents an application error with HTTP status code. ErrorCode
// is a stable machine-readable kind; Retryable tells the client whether
// repeating the same call can succeed.
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithCode sets the machine-readable error code.
func (e *AppError) WithCode(code string) *AppError {
	e.ErrorCode = code
	return e
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewNotFoundError(message string, err error) *AppError {
	if err == nil {
		err = ErrNotFound
	}
	return &AppError{
		Code:      http.StatusNotFound,
		ErrorCode: "not_found",
		Message:   message,
		Err:       err,
	}
}

func NewBadRequestError(message string, err error) *AppError {
	if err == nil {
		err = ErrBadRequest
	}
	return &AppError{
		Code:      http.StatusBadRequest,
		ErrorCode: "bad_request",
		Message:   message,
		Err:       err,
	}
}

func NewInternalError(message string, err error) *AppError {
	if err == nil {
		err = ErrInternalServer
	}
	return &AppError{
		Code:      http.StatusInternalServerError,
		ErrorCode: "internal",
		Message:   message,
		Err:       err,
	}
}

func NewConflictError(message string, err error) *AppError {
	if err == nil {
		err = ErrConflict
	}
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: "conflict",
		Message:   message,
		Err:       err,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:      http.StatusBadRequest,
		ErrorCode: "validation",
		Message:   message,
		Err:       ErrValidation,
	}
}

// NewUnavailableError reports a failing upstream that may recover on retry.
func NewUnavailableError(message string, err error) *AppError {
	if err == nil {
		err = ErrUnavailable
	}
	return &AppError{
		Code:      http.StatusServiceUnavailable,
		ErrorCode: "unavailable",
		Message:   message,
		Retryable: true,
		Err:       err,
	}
}

// NewTimeoutError reports a request that ran past its deadline.
func NewTimeoutError(message string, err error) *AppError {
	return &AppError{
		Code:      http.StatusGatewayTimeout,
		ErrorCode: "timeout",
		Message:   message,
		Retryable: true,
		Err:       err,
	}
}
