package identity

import (
	"errors"
	"fmt"
)

// Code is the stable error taxonomy exposed by the identity provider
type Code string

const (
	CodeWrongPassword     Code = "auth/wrong-password"
	CodeUserNotFound      Code = "auth/user-not-found"
	CodeEmailInUse        Code = "auth/email-already-in-use"
	CodeWeakPassword      Code = "auth/weak-password"
	CodeInvalidEmail      Code = "auth/invalid-email"
	CodeNetwork           Code = "auth/network-request-failed"
	CodeInvalidCredential Code = "auth/invalid-credential"
	CodeAccountConflict   Code = "auth/account-exists-with-different-credential"
)

// Error carries a Code and, optionally, the underlying cause
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

var (
	ErrInvalidCredentials = &Error{Code: CodeWrongPassword}
	ErrUnknownUser        = &Error{Code: CodeUserNotFound}
	ErrEmailInUse         = &Error{Code: CodeEmailInUse}
	ErrWeakPassword       = &Error{Code: CodeWeakPassword}
	ErrInvalidEmail       = &Error{Code: CodeInvalidEmail}
	ErrNetwork            = &Error{Code: CodeNetwork}
)

// networkError wraps a store or transport failure so it never leaks raw
func networkError(err error) error {
	return &Error{Code: CodeNetwork, Err: err}
}

// CodeOf extracts the Code from err, or "" when err is not an identity error
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
