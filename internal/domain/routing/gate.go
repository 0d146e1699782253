package routing

import (
	"time"

	"eduadmin/internal/domain/account"
)

// Policy decides whether a role satisfies a role-bound capability.
type Policy interface {
	Name() string
	Allows(role string, c Capability) bool
}

// Permissive lets any non-empty role through every role-bound capability.
type Permissive struct{}

func (Permissive) Name() string { return "permissive" }

func (Permissive) Allows(role string, c Capability) bool {
	return role != account.RoleNone
}

// Strict requires the role to be listed by the capability.
type Strict struct{}

func (Strict) Name() string { return "strict" }

func (Strict) Allows(role string, c Capability) bool {
	return c.Has(role)
}

// PolicyByName maps a configured policy name to its implementation.
// Unknown names resolve to Permissive.
func PolicyByName(name string) Policy {
	if name == "strict" {
		return Strict{}
	}
	return Permissive{}
}

// Outcome is what the gate does with one navigation.
type Outcome uint8

const (
	Allow Outcome = iota
	RedirectLogin
	RedirectHome
	NotFound
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	}
	return "unknown"
}

// Decision is the gate verdict for a path. Route is the matched route for Allow and
// the fallback route for NotFound.
type Decision struct {
	Outcome Outcome
	Route   Route
	Params  Params
}

// Gate evaluates navigations against a registry under a policy.
type Gate struct {
	Registry *Registry
	Policy   Policy
	Now      func() time.Time
}

// NewGate returns a gate using the wall clock.
func NewGate(reg *Registry, policy Policy) *Gate {
	return &Gate{Registry: reg, Policy: policy, Now: time.Now}
}

// Decide resolves one navigation.
// PRE: path is a URL path
// POST: unauthenticated sessions get Allow only for public routes and RedirectLogin otherwise;
// authenticated sessions never get RedirectLogin
func (g *Gate) Decide(path string, sess account.Session) Decision {
	route, params, matched := g.Registry.Match(path)

	if !sess.IsAuthenticated(g.Now()) {
		if matched && route.Requires.Kind == Public {
			return Decision{Outcome: Allow, Route: route, Params: params}
		}
		return Decision{Outcome: RedirectLogin}
	}

	if !matched {
		return Decision{Outcome: NotFound, Route: g.fallbackFor(sess.Role)}
	}

	switch route.Requires.Kind {
	case Public:
		return Decision{Outcome: RedirectHome, Route: route}
	case AnyAuthenticated:
		return Decision{Outcome: Allow, Route: route, Params: params}
	}
	if g.Policy.Allows(sess.Role, route.Requires) {
		return Decision{Outcome: Allow, Route: route, Params: params}
	}
	return Decision{Outcome: Forbidden, Route: route}
}

// fallbackFor returns the first fallback the role may see.
func (g *Gate) fallbackFor(role string) Route {
	for _, fb := range g.Registry.fallbacks {
		switch fb.Requires.Kind {
		case AnyAuthenticated:
			return fb
		case RoleBound:
			if g.Policy.Allows(role, fb.Requires) {
				return fb
			}
		}
	}
	return Route{Pattern: "*", View: ViewNotFound}
}
