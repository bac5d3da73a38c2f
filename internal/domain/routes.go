package domain

import "strings"

// Application page paths
const (
	RouteRoot              = "/"
	RouteImpact            = "/impact"
	RouteHelp              = "/help"
	RouteLogin             = "/login"
	RouteRegister          = "/register"
	RouteOnboardingAddress = "/onboarding/address"

	RouteCitizenDashboard   = "/dashboard"
	RouteCitizenReport      = "/report"
	RouteCitizenReportNew   = "/report/new"
	RouteCitizenMap         = "/map"
	RouteCitizenLeaderboard = "/leaderboard"
	RouteCitizenRewards     = "/rewards"
	RouteCitizenCommunity   = "/community"
	RouteCitizenSettings    = "/settings"

	RouteRagpickerTasks    = "/r/tasks"
	RouteRagpickerMap      = "/r/map"
	RouteRagpickerEarnings = "/r/earnings"
	RouteRagpickerProfile  = "/r/profile"

	RouteOrgDashboard = "/org/dashboard"
	RouteOrgReports   = "/org/reports"
	RouteOrgMembers   = "/org/members"
	RouteOrgAnalytics = "/org/analytics"
	RouteOrgSettings  = "/org/settings"

	RouteAdminOverview   = "/admin/overview"
	RouteAdminModeration = "/admin/moderation"
	RouteAdminAssign     = "/admin/assign"
	RouteAdminHeatmap    = "/admin/heatmap"
	RouteAdminUsers      = "/admin/users"
	RouteAdminPartners   = "/admin/partners"
	RouteAdminSettings   = "/admin/settings"
)

// FederatedRegisterPath is where a first-time federated user completes registration
const FederatedRegisterPath = RouteRegister + "?google=1"

// Route describes a page and who may see it
type Route struct {
	Path        string
	Name        string
	RequireAuth bool
	Roles       []Role // empty means any authenticated user, or anyone when RequireAuth is false
	AliasOf     string // non-empty for paths that only redirect
}

// Allows reports whether role r satisfies the route's role set
func (r Route) Allows(role Role) bool {
	if len(r.Roles) == 0 {
		return true
	}
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Public reports whether the route renders without a session
func (r Route) Public() bool {
	return !r.RequireAuth && len(r.Roles) == 0
}

func rolePages(role Role, pages ...[2]string) []Route {
	routes := make([]Route, 0, len(pages))
	for _, p := range pages {
		routes = append(routes, Route{Path: p[0], Name: p[1], RequireAuth: true, Roles: []Role{role}})
	}
	return routes
}

var routeTable = func() []Route {
	table := []Route{
		{Path: RouteRoot, Name: "landing"},
		{Path: RouteImpact, Name: "impact"},
		{Path: RouteHelp, Name: "help"},
		{Path: RouteLogin, Name: "login"},
		{Path: RouteRegister, Name: "register"},
		{Path: RouteOnboardingAddress, Name: "onboarding", RequireAuth: true, Roles: AllRoles},
		{Path: RouteCitizenReportNew, Name: "report", AliasOf: RouteCitizenReport},
	}
	table = append(table, rolePages(RoleCitizen,
		[2]string{RouteCitizenDashboard, "dashboard"},
		[2]string{RouteCitizenReport, "report"},
		[2]string{RouteCitizenMap, "map"},
		[2]string{RouteCitizenLeaderboard, "leaderboard"},
		[2]string{RouteCitizenRewards, "rewards"},
		[2]string{RouteCitizenCommunity, "community"},
		[2]string{RouteCitizenSettings, "settings"},
	)...)
	table = append(table, rolePages(RoleRagpicker,
		[2]string{RouteRagpickerTasks, "tasks"},
		[2]string{RouteRagpickerMap, "map"},
		[2]string{RouteRagpickerEarnings, "earnings"},
		[2]string{RouteRagpickerProfile, "profile"},
	)...)
	table = append(table, rolePages(RoleInstitution,
		[2]string{RouteOrgDashboard, "dashboard"},
		[2]string{RouteOrgReports, "reports"},
		[2]string{RouteOrgMembers, "members"},
		[2]string{RouteOrgAnalytics, "analytics"},
		[2]string{RouteOrgSettings, "settings"},
	)...)
	table = append(table, rolePages(RoleAdmin,
		[2]string{RouteAdminOverview, "overview"},
		[2]string{RouteAdminModeration, "moderation"},
		[2]string{RouteAdminAssign, "assign"},
		[2]string{RouteAdminHeatmap, "heatmap"},
		[2]string{RouteAdminUsers, "users"},
		[2]string{RouteAdminPartners, "partners"},
		[2]string{RouteAdminSettings, "settings"},
	)...)
	return table
}()

var routeIndex = func() map[string]Route {
	idx := make(map[string]Route, len(routeTable))
	for _, r := range routeTable {
		idx[r.Path] = r
	}
	return idx
}()

// Routes returns a copy of the route table
func Routes() []Route {
	out := make([]Route, len(routeTable))
	copy(out, routeTable)
	return out
}

// LookupRoute finds the route for a request path, ignoring query and trailing slash
func LookupRoute(path string) (Route, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = RouteRoot
	}
	r, ok := routeIndex[path]
	return r, ok
}
