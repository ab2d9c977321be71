package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies pipeline failures. Every code is terminal for the
// invocation; non-fatal conditions accumulate as warnings on the
// StorageResults instead.
type Code string

const (
	CodeBadRequest           Code = "bad_request"
	CodeNotFound             Code = "not_found"
	CodeUnsupportedType      Code = "unsupported_type"
	CodeConfiguration        Code = "configuration_error"
	CodeIncompleteExtraction Code = "incomplete_extraction"
	CodeAnalysisParse        Code = "analysis_parse_failure"
	CodeStorage              Code = "storage_error"
)

// Error is a classified pipeline failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the failure class onto the invocation contract's status
// classes: 400 bad input, 404 not found, 500 processing failure.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeBadRequest, CodeUnsupportedType, CodeConfiguration:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Errf builds a classified error, optionally wrapping a cause passed as the
// final %w-style argument via fmt.
func Errf(code Code, format string, args ...interface{}) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Code: code, Message: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

// AsError extracts the classified error from a chain, if present.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
