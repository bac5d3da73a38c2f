package domain

import "time"

// User is the merged identity and profile view exposed to guards and handlers.
// Profile fields take precedence over identity fields.
type User struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Role        Role           `json:"role"`
	RoleName    string         `json:"role_name"`
	State       string         `json:"state"`
	City        string         `json:"city"`
	Zone        string         `json:"zone"`
	Address     string         `json:"address"`
	Extensions  map[string]any `json:"extensions,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewUser merges an identity with its profile. p may be nil for an identity without a profile yet.
func NewUser(id *Identity, p *Profile) *User {
	u := &User{
		ID:          id.ID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
	}
	if p == nil {
		u.RoleName = RoleDisplayName(u.Role)
		return u
	}

	if p.Email != "" {
		u.Email = p.Email
	}
	if p.DisplayName != "" {
		u.DisplayName = p.DisplayName
	}
	if p.AvatarURL != "" {
		u.AvatarURL = p.AvatarURL
	}
	u.Role = p.Role
	u.RoleName = RoleDisplayName(p.Role)
	u.State, u.City, u.Zone, u.Address = p.State, p.City, p.Zone, p.Address
	u.Extensions = cloneExtensions(p.Extensions)
	u.CreatedAt, u.UpdatedAt = p.CreatedAt, p.UpdatedAt
	return u
}

// LocationComplete reports whether onboarding has been finished
func (u *User) LocationComplete() bool {
	return locationComplete(u.State, u.City, u.Zone, u.Address)
}

// DefaultRoute is the user's own dashboard
func (u *User) DefaultRoute() string {
	return RoleDefaultRoute(u.Role)
}

// Clone returns a deep copy
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Extensions = cloneExtensions(u.Extensions)
	return &c
}

// Merge applies a partial update to the in-memory view without a store round trip
func (u *User) Merge(update ProfileUpdate) {
	p := &Profile{
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		State:       u.State,
		City:        u.City,
		Zone:        u.Zone,
		Address:     u.Address,
		Extensions:  u.Extensions,
	}
	update.ApplyTo(p)
	u.DisplayName, u.AvatarURL = p.DisplayName, p.AvatarURL
	u.State, u.City, u.Zone, u.Address = p.State, p.City, p.Zone, p.Address
	u.Extensions = p.Extensions
}
