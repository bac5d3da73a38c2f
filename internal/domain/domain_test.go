package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleDefaultRoute(t *testing.T) {
	tests := []struct {
		role     Role
		expected string
	}{
		{RoleCitizen, "/dashboard"},
		{RoleRagpicker, "/r/tasks"},
		{RoleInstitution, "/org/dashboard"},
		{RoleAdmin, "/admin/overview"},
		{"", "/dashboard"},
		{"superuser", "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.expected, RoleDefaultRoute(tt.role))
		})
	}
}

func TestRoleDefaultRoute_IsGuardedForRole(t *testing.T) {
	for _, role := range AllRoles {
		route, ok := LookupRoute(RoleDefaultRoute(role))
		require.True(t, ok, role)
		assert.True(t, route.Allows(role), "default route of %s must admit %s", role, role)
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("  Ragpicker ")
	assert.True(t, ok)
	assert.Equal(t, RoleRagpicker, role)

	_, ok = ParseRole("collector")
	assert.False(t, ok)
	assert.False(t, IsValidRole(""))
}

func TestRoleDisplayName(t *testing.T) {
	assert.Equal(t, "Kiosk Operator", RoleDisplayName(RoleRagpicker))
	assert.Equal(t, "Administrator", RoleDisplayName(RoleAdmin))
	assert.Equal(t, "User", RoleDisplayName("other"))
}

func TestLookupRoute(t *testing.T) {
	tests := []struct {
		path     string
		found    bool
		expected string
	}{
		{"/", true, "/"},
		{"", true, "/"},
		{"/dashboard/", true, "/dashboard"},
		{"/report/new?x=1", true, "/report/new"},
		{"/admin/users#top", true, "/admin/users"},
		{"/nope", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, ok := LookupRoute(tt.path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, r.Path)
		})
	}
}

func TestRouteTable(t *testing.T) {
	onboarding, ok := LookupRoute(RouteOnboardingAddress)
	require.True(t, ok)
	for _, role := range AllRoles {
		assert.True(t, onboarding.Allows(role))
	}

	alias, _ := LookupRoute(RouteCitizenReportNew)
	assert.Equal(t, RouteCitizenReport, alias.AliasOf)

	login, _ := LookupRoute(RouteLogin)
	assert.True(t, login.Public())

	heatmap, _ := LookupRoute(RouteAdminHeatmap)
	assert.False(t, heatmap.Allows(RoleCitizen))
	assert.True(t, heatmap.RequireAuth)

	assert.Len(t, Routes(), len(routeTable))
}

func TestProfile_LocationComplete(t *testing.T) {
	full := &Profile{State: "KA", City: "Bengaluru", Zone: "East", Address: "12 MG Road"}
	assert.True(t, full.LocationComplete())

	for _, mutate := range []func(p *Profile){
		func(p *Profile) { p.State = "" },
		func(p *Profile) { p.City = "" },
		func(p *Profile) { p.Zone = "" },
		func(p *Profile) { p.Address = "   " },
	} {
		p := full.Clone()
		mutate(p)
		assert.False(t, p.LocationComplete())
	}
}

func TestProfileUpdate_ApplyTo(t *testing.T) {
	p := &Profile{City: "Old", Extensions: map[string]any{"points": 10}}
	update := ProfileUpdate{
		City:       StringPtr("New"),
		Extensions: map[string]any{"fullLocation": "East, New, KA"},
	}
	assert.False(t, update.IsEmpty())
	assert.True(t, ProfileUpdate{}.IsEmpty())

	update.ApplyTo(p)
	assert.Equal(t, "New", p.City)
	assert.Equal(t, 10, p.Extensions["points"])
	assert.Equal(t, "East, New, KA", p.Extensions["fullLocation"])
}

func TestForbiddenExtensions(t *testing.T) {
	tests := []struct {
		name string
		ext  map[string]any
		want []string
	}{
		{"none", nil, nil},
		{"user fields", map[string]any{"phone": "1", "landmark": "Near temple", "full_name": "A K"}, nil},
		{"server fields sorted", map[string]any{"total_points": 1, "phone": "1", "fullLocation": "x", "total_earnings": 2},
			[]string{"fullLocation", "total_earnings", "total_points"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForbiddenExtensions(tt.ext))
		})
	}
}

func TestProfile_CloneIsDeep(t *testing.T) {
	p := &Profile{ID: "u1", Extensions: map[string]any{"k": "v"}}
	c := p.Clone()
	c.Extensions["k"] = "changed"
	assert.Equal(t, "v", p.Extensions["k"])
	assert.Nil(t, (*Profile)(nil).Clone())
}

func TestNewUser(t *testing.T) {
	id := &Identity{ID: "u1", Email: "a@b.com", DisplayName: "Google Name", AvatarURL: "https://img/a.png"}

	t.Run("without profile", func(t *testing.T) {
		u := NewUser(id, nil)
		assert.Equal(t, "Google Name", u.DisplayName)
		assert.Equal(t, Role(""), u.Role)
		assert.Equal(t, "User", u.RoleName)
	})

	t.Run("profile overrides identity", func(t *testing.T) {
		now := time.Now()
		u := NewUser(id, &Profile{
			ID: "u1", Email: "a@b.com", DisplayName: "Asha", Role: RoleInstitution,
			State: "KA", City: "Bengaluru", Zone: "East", Address: "12 MG Road",
			CreatedAt: now, UpdatedAt: now,
		})
		assert.Equal(t, "Asha", u.DisplayName)
		assert.Equal(t, "https://img/a.png", u.AvatarURL)
		assert.Equal(t, RoleInstitution, u.Role)
		assert.Equal(t, "Institution", u.RoleName)
		assert.True(t, u.LocationComplete())
		assert.Equal(t, "/org/dashboard", u.DefaultRoute())
	})
}

func TestUser_Merge(t *testing.T) {
	u := &User{ID: "u1", City: "Old", Extensions: map[string]any{"points": 1}}
	u.Merge(ProfileUpdate{City: StringPtr("New"), Zone: StringPtr("North")})

	assert.Equal(t, "New", u.City)
	assert.Equal(t, "North", u.Zone)
	assert.Equal(t, 1, u.Extensions["points"])
}

func TestIdentity_EmailLocalPart(t *testing.T) {
	assert.Equal(t, "asha", (&Identity{Email: "asha@example.com"}).EmailLocalPart())
	assert.Equal(t, "noat", (&Identity{Email: "noat"}).EmailLocalPart())
	assert.Equal(t, "a@b.com", NormalizeEmail("  A@B.com "))
}
