package domain

import "errors"

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrFederatedLinked = errors.New("federated identity already linked")
	ErrInvalidRole     = errors.New("invalid role")
)
