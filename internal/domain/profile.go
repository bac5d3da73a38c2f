package domain

import (
	"sort"
	"strings"
	"time"
)

// Profile is the application-owned record keyed by identity id
type Profile struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	Role        Role           `json:"role"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	State       string         `json:"state"`
	City        string         `json:"city"`
	Zone        string         `json:"zone"`
	Address     string         `json:"address"`
	Extensions  map[string]any `json:"extensions,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// LocationComplete reports whether all onboarding fields are filled in
func (p *Profile) LocationComplete() bool {
	return locationComplete(p.State, p.City, p.Zone, p.Address)
}

func locationComplete(state, city, zone, address string) bool {
	return strings.TrimSpace(state) != "" &&
		strings.TrimSpace(city) != "" &&
		strings.TrimSpace(zone) != "" &&
		strings.TrimSpace(address) != ""
}

// Clone returns a deep copy so callers can't mutate shared state
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Extensions = cloneExtensions(p.Extensions)
	return &c
}

// ProfileHints seed a profile on first materialization. Ignored once a profile exists.
type ProfileHints struct {
	Role        string         `json:"role,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	State       string         `json:"state,omitempty"`
	City        string         `json:"city,omitempty"`
	Zone        string         `json:"zone,omitempty"`
	Address     string         `json:"address,omitempty"`
	Extensions  map[string]any `json:"extensions,omitempty"`

	// Session is the browser session of a federated sign-in. A role parked
	// at registration is only honoured for that session.
	Session string `json:"-"`
}

// ProfileUpdate is a partial update. Nil fields are left untouched; role is not updatable.
type ProfileUpdate struct {
	DisplayName *string        `json:"display_name,omitempty"`
	AvatarURL   *string        `json:"avatar_url,omitempty"`
	State       *string        `json:"state,omitempty"`
	City        *string        `json:"city,omitempty"`
	Zone        *string        `json:"zone,omitempty"`
	Address     *string        `json:"address,omitempty"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

// userExtensions are the extension keys a user may write to their own profile.
// The rest, such as points, earnings and fullLocation, are owned by the server.
var userExtensions = map[string]bool{
	"full_name":    true,
	"phone":        true,
	"landmark":     true,
	"language":     true,
	"profileImage": true,
}

// ForbiddenExtensions returns the sorted keys of ext a user may not set
func ForbiddenExtensions(ext map[string]any) []string {
	var bad []string
	for k := range ext {
		if !userExtensions[k] {
			bad = append(bad, k)
		}
	}
	sort.Strings(bad)
	return bad
}

// IsEmpty reports whether the update changes nothing
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.AvatarURL == nil &&
		u.State == nil && u.City == nil && u.Zone == nil && u.Address == nil &&
		len(u.Extensions) == 0
}

// ApplyTo merges the update into p. Extension keys are merged one level deep.
func (u ProfileUpdate) ApplyTo(p *Profile) {
	setIf(&p.DisplayName, u.DisplayName)
	setIf(&p.AvatarURL, u.AvatarURL)
	setIf(&p.State, u.State)
	setIf(&p.City, u.City)
	setIf(&p.Zone, u.Zone)
	setIf(&p.Address, u.Address)
	if len(u.Extensions) > 0 {
		if p.Extensions == nil {
			p.Extensions = make(map[string]any, len(u.Extensions))
		}
		for k, v := range u.Extensions {
			p.Extensions[k] = v
		}
	}
}

func setIf(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func cloneExtensions(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// StringPtr is a small helper for building updates
func StringPtr(s string) *string {
	return &s
}
