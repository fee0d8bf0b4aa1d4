// Package apperrors classifies failures of the publishing pipeline so that
// callers can tell configuration problems, missing rows, unsupported
// providers and provider outages apart.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindConfig       Kind = "config"
	KindNotFound     Kind = "not_found"
	KindUnsupported  Kind = "unsupported"
	KindProvider     Kind = "provider"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error carries a Kind and a human-readable message. Message is what ends
// up in publish_jobs.error and in API responses.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so errors.Is(err,
// &Error{Kind: KindNotFound}) works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func Unsupported(message string) *Error {
	return New(KindUnsupported, message)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the message of the first *Error in err's chain, or
// err.Error() for unclassified errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPStatus maps an error to the status code an API handler should use.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfig:
		return http.StatusInternalServerError
	case KindNotFound:
		return http.StatusNotFound
	case KindUnsupported:
		return http.StatusUnprocessableEntity
	case KindProvider:
		return http.StatusBadGateway
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
