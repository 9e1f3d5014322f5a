package models

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures of the ingestion and question answering pipelines.
type ErrorCode string

const (
	CodeConfiguration         ErrorCode = "CONFIGURATION_ERROR"
	CodeIngestionData         ErrorCode = "INGESTION_DATA_ERROR"
	CodeGenerationConformance ErrorCode = "GENERATION_CONFORMANCE_ERROR"
	CodeUpstreamUnavailable   ErrorCode = "UPSTREAM_UNAVAILABLE"
	CodeInvalidRequest        ErrorCode = "INVALID_REQUEST"
)

// Error is a classified pipeline error. Message is safe to show to users;
// Err carries the underlying cause for logs.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error without an underlying cause.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates an Error around cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

func ConfigurationError(format string, args ...any) *Error {
	return NewError(CodeConfiguration, fmt.Sprintf(format, args...))
}

func IngestionDataError(format string, args ...any) *Error {
	return NewError(CodeIngestionData, fmt.Sprintf(format, args...))
}

func UpstreamUnavailable(message string, cause error) *Error {
	return WrapError(CodeUpstreamUnavailable, message, cause)
}

func GenerationConformanceError(message string, cause error) *Error {
	return WrapError(CodeGenerationConformance, message, cause)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err's chain contains an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// PublicMessage returns a message suitable for crossing a request boundary.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
