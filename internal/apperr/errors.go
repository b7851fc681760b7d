// Package apperr provides the error taxonomy shared by the answer and indexing pipelines.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for propagation and presentation.
type Code int

const (
	CodeInternal Code = iota
	// CodeInput marks a malformed question, video identifier or segment array.
	CodeInput
	// CodeUpstream marks a failed embedding, vector index or generation call.
	CodeUpstream
	// CodeChunkingDegenerate marks a transcript that produced zero usable chunks.
	CodeChunkingDegenerate
	CodeNotFound
)

func (c Code) String() string {
	switch c {
	case CodeInput:
		return "INPUT_ERROR"
	case CodeUpstream:
		return "UPSTREAM_UNAVAILABLE"
	case CodeChunkingDegenerate:
		return "CHUNKING_DEGENERATE"
	case CodeNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

var httpStatusMap = map[Code]int{
	CodeInternal:           http.StatusInternalServerError,
	CodeInput:              http.StatusBadRequest,
	CodeUpstream:           http.StatusBadGateway,
	CodeChunkingDegenerate: http.StatusUnprocessableEntity,
	CodeNotFound:           http.StatusNotFound,
}

// userMessages are the curated, provider-agnostic texts shown outside debug mode.
var userMessages = map[Code]string{
	CodeInternal:           "Something went wrong while processing your request.",
	CodeUpstream:           "The answering service is temporarily unavailable. Please try again shortly.",
	CodeChunkingDegenerate: "No transcript chunks available for this video.",
}

// Error is the structured error type used across the service.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code a handler should respond with.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatusMap[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// UserMessage returns the text safe to show to callers. Input and not-found errors carry
// their own message; everything else is replaced by a curated one unless debug is set.
func (e *Error) UserMessage(debug bool) string {
	if debug {
		return e.Error()
	}
	if e.Code == CodeInput || e.Code == CodeNotFound {
		return e.Message
	}
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return userMessages[CodeInternal]
}

// WithMetadata adds metadata to an Error.
func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// New creates a new Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Input is shorthand for a CodeInput error.
func Input(format string, args ...any) *Error {
	return Newf(CodeInput, format, args...)
}

// Upstream wraps a failed collaborator call.
func Upstream(err error, stage, provider string) *Error {
	return Wrapf(err, CodeUpstream, "%s call failed", stage).
		WithMetadata("stage", stage).
		WithMetadata("provider", provider)
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
