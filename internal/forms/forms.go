// Package forms holds the synchronous checks each form runs before it
// calls the auth client or the record store. Failures are message catalog
// keys so the caller can render them in the request locale.
package forms

import (
	"strings"
	"unicode/utf8"

	"github.com/yu-fu/smokesearch/internal/models"
)

// Field limits.
const (
	MaxMemoLength    = 200
	MaxCommentLength = 1000
)

// FieldError is one failed check.
type FieldError struct {
	Field string
	Key   string
}

// Errors lists failed checks in field order.
type Errors []FieldError

// OK reports whether every check passed.
func (e Errors) OK() bool { return len(e) == 0 }

// First returns the key of the first failure, or "".
func (e Errors) First() string {
	if len(e) == 0 {
		return ""
	}
	return e[0].Key
}

// Field returns the key for field, or "".
func (e Errors) Field(name string) string {
	for _, fe := range e {
		if fe.Field == name {
			return fe.Key
		}
	}
	return ""
}

func (e *Errors) add(field, key string) {
	*e = append(*e, FieldError{Field: field, Key: key})
}

// Validator is implemented by every form.
type Validator interface {
	Validate() Errors
}

// Submit runs action only when v passes validation. The returned Errors is
// nil when action ran.
func Submit(v Validator, action func() error) (Errors, error) {
	if errs := v.Validate(); !errs.OK() {
		return errs, nil
	}
	return nil, action()
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// SignUp is the account creation form.
type SignUp struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (f SignUp) Validate() Errors {
	var errs Errors
	if blank(f.Email) {
		errs.add("email", "auth.email_required")
	}
	if f.Password == "" {
		errs.add("password", "auth.password_required")
	}
	if f.Password != f.ConfirmPassword {
		errs.add("confirmPassword", "auth.password_mismatch")
	}
	return errs
}

// Login is the email/password sign-in form.
type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (f Login) Validate() Errors {
	var errs Errors
	if blank(f.Email) {
		errs.add("email", "auth.email_required")
	}
	if f.Password == "" {
		errs.add("password", "auth.password_required")
	}
	return errs
}

// PasswordReset requests a reset email.
type PasswordReset struct {
	Email string `json:"email"`
}

func (f PasswordReset) Validate() Errors {
	var errs Errors
	if blank(f.Email) {
		errs.add("email", "auth.email_required")
	}
	return errs
}

// NewPassword completes a reset with the mailed code.
type NewPassword struct {
	Code            string `json:"code"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (f NewPassword) Validate() Errors {
	var errs Errors
	if blank(f.Code) {
		errs.add("code", "auth_error.invalid-action-code")
	}
	if f.Password == "" {
		errs.add("password", "auth.password_required")
	}
	if f.Password != f.ConfirmPassword {
		errs.add("confirmPassword", "auth.password_mismatch")
	}
	return errs
}

// Report flags a smoking area.
type Report struct {
	Reason  string `json:"reason"`
	Comment string `json:"comment"`
}

func (f Report) Validate() Errors {
	var errs Errors
	if _, err := models.ParseReportReason(f.Reason); err != nil {
		errs.add("reason", "error.reason_required")
	}
	if utf8.RuneCountInString(strings.TrimSpace(f.Comment)) > MaxCommentLength {
		errs.add("comment", "error.comment_too_long")
	}
	return errs
}

// Memo is the optional note in the add dialog.
type Memo struct {
	Memo string `json:"memo"`
}

func (f Memo) Validate() Errors {
	var errs Errors
	if utf8.RuneCountInString(strings.TrimSpace(f.Memo)) > MaxMemoLength {
		errs.add("memo", "error.memo_too_long")
	}
	return errs
}
