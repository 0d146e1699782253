package routing

import "eduadmin/internal/domain/account"

// View names the web adapter binds handlers to.
const (
	ViewLogin          = "login"
	ViewRegister       = "register"
	ViewLogout         = "logout"
	ViewHome           = "home"
	ViewProfile        = "profile"
	ViewDashboard      = "dashboard"
	ViewPerformance    = "performance"
	ViewCenterDetail   = "center_detail"
	ViewSectionDetail  = "section_detail"
	ViewResourceList   = "resource_list"
	ViewResourceCancel = "resource_cancel"
	ViewResourceDelete = "resource_delete"
	ViewResourceAction = "resource_action"
	ViewResourceExport = "resource_export"
	ViewNotFound       = "not_found"
	ViewCommonNotFound = "common_not_found"
)

// Resource names served by the generic resource views.
const (
	ResourceCenters       = "centers"
	ResourceSections      = "sections"
	ResourceSchedules     = "schedules"
	ResourceSubscriptions = "subscriptions"
	ResourceRecords       = "records"
	ResourceUsers         = "users"
)

// resourceRoutes expands one resource into its list, modal and action routes.
// Export and cancel precede the ":id" patterns they would otherwise collide with.
func resourceRoutes(resource string, req Capability) []Route {
	base := "/" + resource
	return []Route{
		{Pattern: base, Requires: req, View: ViewResourceList, Resource: resource},
		{Pattern: base + "/export", Requires: req, View: ViewResourceExport, Resource: resource},
		{Pattern: base + "/cancel", Requires: req, View: ViewResourceCancel, Resource: resource},
		{Pattern: base + "/:id/delete", Requires: req, View: ViewResourceDelete, Resource: resource},
		{Pattern: base + "/:id/:action", Requires: req, View: ViewResourceAction, Resource: resource},
	}
}

// ConsoleRegistry is the console's route table: the unauthenticated set, the
// authenticated common set and the role-specific set with its own fallback.
func ConsoleRegistry() *Registry {
	admin := RequireRoles(account.RoleAdmin)
	staffDesk := RequireRoles(account.RoleAdmin, account.RoleStaff)
	anyRole := RequireRoles(AllRoles()...)

	routes := []Route{
		{Pattern: "/login", Requires: RequirePublic(), View: ViewLogin},
		{Pattern: "/register", Requires: RequirePublic(), View: ViewRegister},

		{Pattern: "/", Requires: RequireAuthenticated(), View: ViewHome},
		{Pattern: "/logout", Requires: RequireAuthenticated(), View: ViewLogout},
		{Pattern: "/section/:id", Requires: RequireAuthenticated(), View: ViewSectionDetail},
		{Pattern: "/center/:id", Requires: RequireAuthenticated(), View: ViewCenterDetail},

		{Pattern: "/profile", Requires: anyRole, View: ViewProfile},
		{Pattern: "/dashboard", Requires: admin, View: ViewDashboard},
		{Pattern: "/performance", Requires: admin, View: ViewPerformance},
	}
	routes = append(routes, resourceRoutes(ResourceCenters, admin)...)
	routes = append(routes, Route{Pattern: "/centers/:id", Requires: admin, View: ViewCenterDetail})
	routes = append(routes, resourceRoutes(ResourceSections, staffDesk)...)
	routes = append(routes, resourceRoutes(ResourceSchedules, staffDesk)...)
	routes = append(routes, resourceRoutes(ResourceRecords, staffDesk)...)
	routes = append(routes, resourceRoutes(ResourceSubscriptions, admin)...)
	routes = append(routes, resourceRoutes(ResourceUsers, admin)...)

	routes = append(routes,
		Route{Pattern: "*", Requires: anyRole, View: ViewNotFound},
		Route{Pattern: "*", Requires: RequireAuthenticated(), View: ViewCommonNotFound},
	)
	return NewRegistry(routes...)
}
