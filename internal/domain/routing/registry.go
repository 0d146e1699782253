package routing

import (
	"strings"

	"eduadmin/internal/domain/account"
)

// CapabilityKind tags what a route requires of the session.
type CapabilityKind uint8

const (
	// Public routes are reachable only without a session (login, registration).
	Public CapabilityKind = iota
	// AnyAuthenticated routes need a session with any role.
	AnyAuthenticated
	// RoleBound routes need one of Capability.Roles, subject to the active Policy.
	RoleBound
)

// Capability is what a session must hold to reach a route.
type Capability struct {
	Kind  CapabilityKind
	Roles []string
}

// RequirePublic marks a route as part of the unauthenticated set.
func RequirePublic() Capability { return Capability{Kind: Public} }

// RequireAuthenticated marks a route as part of the authenticated common set.
func RequireAuthenticated() Capability { return Capability{Kind: AnyAuthenticated} }

// RequireRoles marks a route as part of the role-specific set.
// PRE: len(roles) > 0
func RequireRoles(roles ...string) Capability {
	return Capability{Kind: RoleBound, Roles: roles}
}

// Has reports whether role is explicitly listed by the capability.
func (c Capability) Has(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Route binds a path pattern to a view. Pattern segments starting with ':' capture a
// parameter; the pattern "*" is a fallback matching any path.
type Route struct {
	Pattern  string
	Requires Capability
	View     string
	Resource string // set for generic resource views
}

// Params holds captured pattern segments.
type Params map[string]string

// Registry is the ordered route table. Earlier routes win.
// INVARIANT: fallbacks are consulted only after every concrete pattern missed
type Registry struct {
	routes    []Route
	fallbacks []Route
}

// NewRegistry builds a registry from routes, splitting "*" patterns into fallbacks.
func NewRegistry(routes ...Route) *Registry {
	reg := &Registry{}
	for _, rt := range routes {
		if rt.Pattern == "*" {
			reg.fallbacks = append(reg.fallbacks, rt)
			continue
		}
		reg.routes = append(reg.routes, rt)
	}
	return reg
}

// Routes returns the concrete routes in match order.
func (r *Registry) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Match finds the first concrete route whose pattern matches path.
// PRE: path is a URL path (leading slash)
// POST: returns the route and its captured params, or ok=false
func (r *Registry) Match(path string) (Route, Params, bool) {
	segs := splitPath(path)
	for _, rt := range r.routes {
		if params, ok := matchPattern(splitPath(rt.Pattern), segs); ok {
			return rt, params, true
		}
	}
	return Route{}, nil, false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchPattern(pattern, segs []string) (Params, bool) {
	if len(pattern) != len(segs) {
		return nil, false
	}
	var params Params
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if segs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = Params{}
			}
			params[p[1:]] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}

// AllRoles lists every role that can hold a session.
func AllRoles() []string {
	return append([]string(nil), account.ValidRoles...)
}
