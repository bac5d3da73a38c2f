package guard

import "cleansight/internal/domain"

// View is the session state a navigation is resolved against
type View struct {
	Loading bool
	User    *domain.User
}

// Resolve decides a navigation to path for the whole route table.
// Alias routes redirect unconditionally; the onboarding gate runs before the
// role guard; unknown paths are not found once no redirect applies.
func Resolve(path string, v View) Decision {
	route, known := domain.LookupRoute(path)
	if known && route.AliasOf != "" {
		return redirect(route.AliasOf, "alias")
	}

	if v.Loading {
		return Decision{Action: ActionPlaceholder}
	}

	if d, ok := Onboarding(v.User, path); ok {
		return d
	}

	if !known {
		return Decision{Action: ActionNotFound}
	}

	return Decide(Input{
		User:          v.User,
		RequireAuth:   route.RequireAuth,
		RequiredRoles: route.Roles,
		Requested:     path,
	})
}
