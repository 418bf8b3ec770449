package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/yu-fu/smokesearch/internal/i18n"
)

// Code is an identity provider error code.
type Code string

const (
	CodeEmailAlreadyInUse   Code = "auth/email-already-in-use"
	CodeInvalidEmail        Code = "auth/invalid-email"
	CodeOperationNotAllowed Code = "auth/operation-not-allowed"
	CodeWeakPassword        Code = "auth/weak-password"
	CodeUserDisabled        Code = "auth/user-disabled"
	CodeUserNotFound        Code = "auth/user-not-found"
	CodeWrongPassword       Code = "auth/wrong-password"
	CodeTooManyRequests     Code = "auth/too-many-requests"
	CodeRequiresRecentLogin Code = "auth/requires-recent-login"
	CodeInvalidActionCode   Code = "auth/invalid-action-code"
)

// ProviderError is a failure reported by an identity provider.
type ProviderError struct {
	Code Code
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func providerErr(code Code) error { return &ProviderError{Code: code} }

// Error is what Client returns for every failed auth operation. Message is
// the user-facing text from the localized error table.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// ErrNoSession is returned when an operation needs a signed-in user.
var ErrNoSession = errors.New("no active session")

// messageKey maps a provider code to its catalog key. Codes outside the
// table use the generic entry.
var messageKey = map[Code]string{
	CodeEmailAlreadyInUse:   "auth_error.email-already-in-use",
	CodeInvalidEmail:        "auth_error.invalid-email",
	CodeOperationNotAllowed: "auth_error.operation-not-allowed",
	CodeWeakPassword:        "auth_error.weak-password",
	CodeUserDisabled:        "auth_error.user-disabled",
	CodeUserNotFound:        "auth_error.user-not-found",
	CodeWrongPassword:       "auth_error.wrong-password",
	CodeTooManyRequests:     "auth_error.too-many-requests",
	CodeRequiresRecentLogin: "auth_error.requires-recent-login",
	CodeInvalidActionCode:   "auth_error.invalid-action-code",
}

const defaultMessageKey = "auth_error.default"

// Message returns the localized message for code.
func Message(cat *i18n.Catalog, locale string, code Code) string {
	key, ok := messageKey[code]
	if !ok {
		key = defaultMessageKey
	}
	return cat.T(locale, key)
}

// translate re-raises err as an *Error with the message for the request locale.
func translate(ctx context.Context, cat *i18n.Catalog, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var pe *ProviderError
	code := Code("")
	if errors.As(err, &pe) {
		code = pe.Code
	}
	return &Error{
		Code:    code,
		Message: Message(cat, i18n.FromContext(ctx), code),
		Err:     err,
	}
}

// CodeOf returns the provider code carried by err, or "".
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsRequiresRecentLogin reports whether err asks the user to sign in again.
func IsRequiresRecentLogin(err error) bool {
	return CodeOf(err) == CodeRequiresRecentLogin
}

// ParseCode accepts a code with or without the "auth/" prefix.
func ParseCode(s string) Code {
	if !strings.HasPrefix(s, "auth/") {
		s = "auth/" + s
	}
	return Code(s)
}
