package web

import (
	"net/http"

	"go.uber.org/zap"

	"eduadmin/internal/adapters/http/middleware"
	"eduadmin/internal/application/orchestrators"
	"eduadmin/internal/domain/routing"
)

// MsgLoginFailed is shown for every failed login, whatever the cause.
const MsgLoginFailed = "Неверный логин или пароль"

type loginForm struct {
	Identifier string
	Error      string
	Registered bool
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ routing.Decision) {
	switch r.Method {
	case http.MethodGet:
		form := loginForm{Registered: r.URL.Query().Get("registered") == "1"}
		s.render(w, r, http.StatusOK, "login.html", s.pageData(r, "Вход", form))
	case http.MethodPost:
		s.submitLogin(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) submitLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	input := orchestrators.LoginInput{
		Identifier: r.PostForm.Get("identifier"),
		Password:   r.PostForm.Get("password"),
	}
	sess, err := orchestrators.ExecuteLogin(r.Context(), input, orchestrators.LoginDeps{API: s.deps.API, Now: s.now})
	if err != nil {
		form := loginForm{Identifier: input.Identifier, Error: MsgLoginFailed}
		s.render(w, r, http.StatusUnauthorized, "login.html", s.pageData(r, "Вход", form))
		return
	}
	token, err := s.deps.Sessions.Create(r.Context(), sess)
	if err != nil {
		internalError(w, err)
		return
	}
	middleware.SetSessionCookie(w, token)
	http.Redirect(w, r, s.homePath(sess), http.StatusSeeOther)
}

type registerForm struct {
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	IIN         string
	IsParent    bool
	Error       string
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ routing.Decision) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, r, http.StatusOK, "register.html", s.pageData(r, "Регистрация", registerForm{}))
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		f := r.PostForm
		form := registerForm{
			Email:       f.Get("email"),
			FirstName:   f.Get("first_name"),
			LastName:    f.Get("last_name"),
			PhoneNumber: f.Get("phone_number"),
			IIN:         f.Get("iin"),
			IsParent:    f.Get("is_parent") == "on",
		}
		input := orchestrators.RegisterInput{
			Email:       form.Email,
			FirstName:   form.FirstName,
			LastName:    form.LastName,
			PhoneNumber: form.PhoneNumber,
			IIN:         form.IIN,
			Password:    f.Get("password"),
			IsParent:    form.IsParent,
		}
		if err := orchestrators.ExecuteRegister(r.Context(), input, orchestrators.RegisterDeps{API: s.deps.API}); err != nil {
			form.Error = orchestrators.MsgRegistrationFailed
			s.render(w, r, http.StatusUnprocessableEntity, "register.html", s.pageData(r, "Регистрация", form))
			return
		}
		http.Redirect(w, r, "/login?registered=1", http.StatusSeeOther)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// handleLogout ends the session and forgets its view state.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ routing.Decision) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	token := middleware.SessionToken(r.Context())
	if err := s.deps.Sessions.Delete(r.Context(), token); err != nil {
		zap.S().Warnw("logout_delete_failed", "error", err)
	}
	s.views.Drop(token)
	middleware.ClearSessionCookie(w)
	sess, _ := middleware.SessionFromContext(r.Context())
	zap.S().Infow("auth_event", "event", "logout", "user_id", sess.UserID)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
