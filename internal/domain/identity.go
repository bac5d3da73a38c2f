package domain

import "strings"

// Identity is issued by the identity provider and is read-only to the rest of the system
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// EmailLocalPart returns the part of the email before "@"
func (i *Identity) EmailLocalPart() string {
	if at := strings.IndexByte(i.Email, '@'); at > 0 {
		return i.Email[:at]
	}
	return i.Email
}

// FederatedAssertion is what an external provider tells us about a user after a successful exchange
type FederatedAssertion struct {
	Provider      string `json:"provider"`
	Subject       string `json:"subject"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

// FederatedResult carries the identity plus whether the account was created by this sign-in
type FederatedResult struct {
	Identity  *Identity
	IsNewUser bool
}

// Account is the identity provider's stored record
type Account struct {
	ID           string
	Email        string
	PasswordHash string // empty for federated-only accounts
	DisplayName  string
	AvatarURL    string
}

// Identity projects the account into the public identity record
func (a *Account) Identity() *Identity {
	return &Identity{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		AvatarURL:   a.AvatarURL,
	}
}

// NormalizeEmail lowercases and trims an address for lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
