package identity

import (
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength matches the upstream identity service's weak-password threshold
const MinPasswordLength = 6

// hashPassword hashes a plaintext password using bcrypt
func hashPassword(password string, cost int) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// verifyPassword compares plaintext password with stored hash
func verifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword is exported for seeding fixtures
func HashPassword(password string) (string, error) {
	return hashPassword(password, bcrypt.DefaultCost)
}

// validateEmail accepts a bare address only, no display name
func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.IndexByte(email, '@'):], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
