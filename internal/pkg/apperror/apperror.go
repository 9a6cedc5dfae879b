// Package apperror defines the error kinds surfaced by the API.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the HTTP layer.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindAuthorization     Kind = "FORBIDDEN"
	KindInvalidState      Kind = "INVALID_STATE"
	KindConflict          Kind = "CONFLICT"
	KindRateLimit         Kind = "RATE_LIMIT_EXCEEDED"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindNotFound          Kind = "NOT_FOUND"
)

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches kind sentinels (errors with no message) by kind, so
// errors.Is(err, apperror.ErrConflict) holds for every conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Kind sentinels.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrRateLimit         = &Error{Kind: KindRateLimit}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrNotFound          = &Error{Kind: KindNotFound}
)

// New creates a classified error. Package-level domain sentinels are built with it.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf formats the message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of e carrying extra context for the client.
// The copy still matches e through errors.Is.
func (e *Error) WithDetails(details map[string]any) error {
	return &detailed{err: &Error{Kind: e.Kind, Message: e.Message, Details: details}, base: e}
}

type detailed struct {
	err  *Error
	base *Error
}

func (d *detailed) Error() string { return d.err.Error() }

func (d *detailed) Unwrap() error { return d.base }

// KindOf returns the kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As extracts the classified error, if any.
func As(err error) (*Error, bool) {
	var det *detailed
	if errors.As(err, &det) {
		return det.err, true
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Validation builds a validation error from field messages.
func Validation(fields map[string]string) error {
	details := make(map[string]any, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return &Error{Kind: KindValidation, Message: "Validation failed", Details: details}
}
