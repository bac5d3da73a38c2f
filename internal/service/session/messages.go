package session

import (
	"errors"

	"cleansight/internal/service/identity"
	apperrors "cleansight/pkg/errors"
)

const (
	msgAuthFailed    = "Authentication failed"
	msgProfileFailed = "Could not load your profile, please retry"
)

var userMessages = map[identity.Code]string{
	identity.CodeEmailInUse:      "Email already in use",
	identity.CodeInvalidEmail:    "Invalid email address",
	identity.CodeWeakPassword:    "Password is too weak",
	identity.CodeUserNotFound:    "User not found",
	identity.CodeWrongPassword:   "Incorrect password",
	identity.CodeAccountConflict: "An account with this email already exists, sign in with your password first",
}

// UserMessage translates an identity error into the text shown on the form.
// Unmapped codes never leak provider details.
func UserMessage(err error) string {
	if msg, ok := userMessages[identity.CodeOf(err)]; ok {
		return msg
	}
	return msgAuthFailed
}

// toAppError wraps an identity failure for the HTTP layer, keeping the stable code
func toAppError(err error) *apperrors.AppError {
	code := identity.CodeOf(err)
	msg := UserMessage(err)

	var appErr *apperrors.AppError
	switch code {
	case identity.CodeEmailInUse, identity.CodeAccountConflict:
		appErr = apperrors.NewConflictError(msg)
	case identity.CodeInvalidEmail, identity.CodeWeakPassword:
		appErr = apperrors.NewValidationError(msg, nil)
	case identity.CodeNetwork:
		appErr = apperrors.NewExternalError(msg, err)
	default:
		appErr = apperrors.NewAuthenticationError(msg)
		appErr.Internal = err
	}
	if code != "" {
		appErr = appErr.WithCode(string(code))
	}
	return appErr
}

// ErrNotAuthenticated is returned by operations that need a signed-in user
var ErrNotAuthenticated = errors.New("not signed in")
