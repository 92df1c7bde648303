package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Dispatch error codes. Permanent vs transient drives adapter retry policy.
const (
	ErrInvalidInput ErrorCode = iota + 1000
	ErrQuotaExceeded
	ErrProviderRejected
	ErrProviderUnavailable
	ErrDecryptFailed
	ErrConfig
)

func InvalidInput(message string, err error) *AppError {
	return &AppError{Code: ErrInvalidInput, Message: message, Err: err}
}

func QuotaExceeded(window string) *AppError {
	return &AppError{Code: ErrQuotaExceeded, Message: fmt.Sprintf("%s quota exhausted", window)}
}

// ProviderRejected marks a 4xx-class provider error: permanent, never retried.
func ProviderRejected(provider, reason string) *AppError {
	return &AppError{Code: ErrProviderRejected, Message: fmt.Sprintf("%s rejected send: %s", provider, reason)}
}

// ProviderUnavailable marks a transient provider error (network, 5xx, timeout).
func ProviderUnavailable(provider string, err error) *AppError {
	return &AppError{Code: ErrProviderUnavailable, Message: fmt.Sprintf("%s unavailable", provider), Err: err}
}

func DecryptFailed(err error) *AppError {
	return &AppError{Code: ErrDecryptFailed, Message: "envelope decryption failed", Err: err}
}

func Config(message string, err error) *AppError {
	return &AppError{Code: ErrConfig, Message: message, Err: err}
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code == ErrProviderUnavailable
	}
	return false
}

// CodeOf extracts the ErrorCode from err, or zero if it is not an AppError.
func CodeOf(err error) ErrorCode {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return 0
}
