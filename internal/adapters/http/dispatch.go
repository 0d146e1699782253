package web

import (
	"net/http"

	"eduadmin/internal/adapters/http/middleware"
	"eduadmin/internal/domain/account"
	"eduadmin/internal/domain/routing"
)

// homeCandidates are tried in order when a session lands on "/" or a public page.
var homeCandidates = []string{"/dashboard", "/sections", "/profile"}

// dispatch asks the gate about the navigation and runs the bound view.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	d := s.gate.Decide(r.URL.Path, sess)

	switch d.Outcome {
	case routing.RedirectLogin:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case routing.RedirectHome:
		http.Redirect(w, r, s.homePath(sess), http.StatusSeeOther)
	case routing.Forbidden:
		s.render(w, r, http.StatusForbidden, "forbidden.html", s.pageData(r, "Доступ запрещён", nil))
	case routing.NotFound:
		s.renderNotFound(w, r, d.Route.View)
	default:
		h, ok := s.handlers[d.Route.View]
		if !ok {
			s.renderNotFound(w, r, d.Route.View)
			return
		}
		h(w, r, d)
	}
}

// homePath is the first landing page the session may open.
func (s *Server) homePath(sess account.Session) string {
	for _, p := range homeCandidates {
		if s.gate.Decide(p, sess).Outcome == routing.Allow {
			return p
		}
	}
	return "/profile"
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, _ routing.Decision) {
	sess, _ := middleware.SessionFromContext(r.Context())
	http.Redirect(w, r, s.homePath(sess), http.StatusSeeOther)
}

// renderNotFound shows the fallback page. The role-specific fallback keeps the
// console menu; the common one does not.
func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request, view string) {
	data := s.pageData(r, "Страница не найдена", nil)
	if view == routing.ViewCommonNotFound {
		data.Nav = nil
	}
	s.render(w, r, http.StatusNotFound, "not_found.html", data)
}

// methodNotAllowed answers verbs a view does not serve.
func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
