package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeCanceled    ErrorType = "canceled"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a fetch error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(errorType ErrorType, code int, message string) *Error {
	return &Error{Type: errorType, Code: code, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(errorType ErrorType, code int, err error) *Error {
	return &Error{Type: errorType, Code: code, Message: err.Error(), Err: err}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// TypeForStatus maps an HTTP status code to an error type
func TypeForStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode == 408:
		return ErrorTypeNetwork
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// IsTransient reports whether err is a typed error worth retrying.
// Untyped errors, context errors included, are permanent.
func IsTransient(err error) bool {
	var typed *Error
	if err != nil && stderrors.As(err, &typed) {
		return IsRetryable(typed.Type)
	}
	return false
}

// IsCanceled reports whether err stems from a cancelled or expired caller context
func IsCanceled(err error) bool {
	var typed *Error
	if stderrors.As(err, &typed) && typed.Type == ErrorTypeCanceled {
		return true
	}
	return stderrors.Is(err, context.Canceled)
}

// IsNameResolution reports whether err was caused by a DNS lookup failure
func IsNameResolution(err error) bool {
	var dnsErr *net.DNSError
	return stderrors.As(err, &dnsErr)
}
