// Package apperr defines typed application errors and their HTTP mapping.
package apperr

import (
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
)

// Type classifies an application error.
type Type string

const (
	TypeNotFound     Type = "NOT_FOUND"
	TypeValidation   Type = "VALIDATION"
	TypeConflict     Type = "CONFLICT"
	TypeUnauthorized Type = "UNAUTHORIZED"
	TypeInternal     Type = "INTERNAL"
	TypeExternal     Type = "EXTERNAL"
)

// Error is an application error with a type and an optional cause.
type Error struct {
	Type    Type
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message}
}

func Validation(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Type: TypeConflict, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Type: TypeUnauthorized, Message: message}
}

// Internal wraps a failure of this service (store, disk, encoding).
func Internal(message string, err error) *Error {
	return &Error{Type: TypeInternal, Message: message, Err: err}
}

// External wraps a failure reported by a collaborator (identity provider, mailer).
func External(message string, err error) *Error {
	return &Error{Type: TypeExternal, Message: message, Err: err}
}

// Is reports whether err is an *Error of type t.
func Is(err error, t Type) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Type == t
}

// ToHuma converts err into a huma status error. Internal causes are not
// exposed to the client.
func ToHuma(err error) error {
	var ae *Error
	if !errors.As(err, &ae) {
		return huma.Error500InternalServerError("operation failed")
	}
	switch ae.Type {
	case TypeNotFound:
		return huma.Error404NotFound(ae.Message)
	case TypeValidation:
		return huma.Error422UnprocessableEntity(ae.Message)
	case TypeConflict:
		return huma.Error409Conflict(ae.Message)
	case TypeUnauthorized:
		return huma.Error401Unauthorized(ae.Message)
	case TypeExternal:
		return huma.Error502BadGateway(ae.Message)
	default:
		return huma.Error500InternalServerError(ae.Message)
	}
}
