package guard

import "cleansight/internal/domain"

// Onboarding checks a signed-in user's location before any destination.
// ok is false when the gate has no opinion and the route guard should decide.
func Onboarding(user *domain.User, path string) (d Decision, ok bool) {
	if user == nil {
		return Decision{}, false
	}

	onboarding := isOnboarding(path)
	complete := user.LocationComplete()

	switch {
	case onboarding && complete:
		return redirect(user.DefaultRoute(), "onboarding_done"), true
	case onboarding:
		return render(), true
	case !complete:
		d := redirect(domain.RouteOnboardingAddress, "onboarding_incomplete")
		d.From = path
		return d, true
	}
	return Decision{}, false
}

func isOnboarding(path string) bool {
	r, ok := domain.LookupRoute(path)
	return ok && r.Path == domain.RouteOnboardingAddress
}
