package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig   = "CONFIG"
	ErrTimeout  = "TIMEOUT"
	ErrCanceled = "CANCELED"
	ErrSource   = "SOURCE"
	ErrIdentity = "IDENTITY"
	ErrStream   = "STREAM"
	ErrStore    = "STORE"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSource code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSource,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Summary returns a single-line description suitable for a cycle error list.
func (e *Error) Summary() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + firstLine(e.Cause.Error())
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost structured Error in the chain.
// Bare context errors map to ErrTimeout and ErrCanceled; anything else
// unstructured is reported as ErrSource.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var fdErr *Error
	if errors.As(err, &fdErr) {
		return fdErr.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCanceled
	default:
		return ErrSource
	}
}

// Failure is a named per-query (or per-fetch) failure collected into a
// cycle's error summary. It is a value so snapshots can carry it safely.
type Failure struct {
	Name    string `json:"name" yaml:"name"`
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

// NewFailure builds a Failure for the named query from err.
func NewFailure(name string, err error) Failure {
	msg := ""
	var fdErr *Error
	if errors.As(err, &fdErr) {
		msg = fdErr.Summary()
	} else if err != nil {
		msg = firstLine(err.Error())
	}
	return Failure{Name: name, Code: CodeOf(err), Message: msg}
}

// String renders the failure as "name: CODE message".
func (f Failure) String() string {
	return fmt.Sprintf("%s: %s %s", f.Name, f.Code, f.Message)
}

func firstLine(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "✗"))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
