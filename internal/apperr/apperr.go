// Package apperr defines the machine-readable error kinds returned by the
// contract pipeline operations.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	NotFound         Kind = "NOT_FOUND"
	AccessDenied     Kind = "ACCESS_DENIED"
	ValidationError  Kind = "VALIDATION_ERROR"
	NoReadyContracts Kind = "NO_READY_CONTRACTS"
	ExecutionError   Kind = "EXECUTION_ERROR"
)

// Error carries a kind, a human readable message and optional structured
// details (for example per-format validation errors).
type Error struct {
	Kind    Kind
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// KindOf returns the kind of err, or ExecutionError for errors that did not
// originate from this package.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ExecutionError
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case AccessDenied:
		return http.StatusForbidden
	case ValidationError:
		return http.StatusUnprocessableEntity
	case NoReadyContracts:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
