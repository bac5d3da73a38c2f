package guard

import (
	"cleansight/internal/domain"
)

// Action is what the caller should do with a navigation
type Action string

const (
	// ActionPlaceholder means the session is still loading; nothing is decided yet
	ActionPlaceholder Action = "placeholder"
	ActionRedirect    Action = "redirect"
	ActionRender      Action = "render"
	ActionNotFound    Action = "not_found"
)

// Input is everything a guard decision depends on
type Input struct {
	Loading       bool
	User          *domain.User
	RequireAuth   bool
	RequiredRoles []domain.Role
	// Requested is the originally requested location, kept for post-login return
	Requested string
}

// Decision is the outcome for one navigation
type Decision struct {
	Action Action `json:"action"`
	Target string `json:"target,omitempty"`
	From   string `json:"from,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func render() Decision { return Decision{Action: ActionRender} }

func redirect(target, reason string) Decision {
	return Decision{Action: ActionRedirect, Target: target, Reason: reason}
}

// Decide applies the page guard rules in order:
// loading shows a placeholder, a missing user on an auth page goes to login
// with the requested location, a role mismatch sends a signed-in user to
// their own dashboard (never to login or not-found), anything else renders.
func Decide(in Input) Decision {
	if in.Loading {
		return Decision{Action: ActionPlaceholder}
	}

	if in.RequireAuth && in.User == nil {
		d := redirect(domain.RouteLogin, "auth_required")
		d.From = in.Requested
		return d
	}

	if len(in.RequiredRoles) > 0 && (in.User == nil || in.User.Role == "" || !hasRole(in.RequiredRoles, in.User.Role)) {
		if in.User != nil && in.User.Role != "" {
			return redirect(domain.RoleDefaultRoute(in.User.Role), "role_mismatch")
		}
		return redirect(domain.RouteLogin, "role_unknown")
	}

	return render()
}

func hasRole(roles []domain.Role, r domain.Role) bool {
	for _, allowed := range roles {
		if allowed == r {
			return true
		}
	}
	return false
}
