package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"eduadmin/internal/adapters/storage/session"
	"eduadmin/internal/domain/account"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const authContextKey contextKey = "auth"

// SessionCookieName carries the opaque session token.
const SessionCookieName = "eduadmin_session"

// SecureCookies marks cookies Secure; set in production.
var SecureCookies = false

// authState is what Auth stores in the request context.
type authState struct {
	token   string
	session account.Session
}

// Auth resolves the session cookie into an authenticated session in the context.
// A session whose access credential has expired is deleted and its cookie cleared,
// so the request continues unauthenticated.
func Auth(store session.Store, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := store.Get(r.Context(), cookie.Value)
			switch {
			case errors.Is(err, session.ErrNotFound):
				ClearSessionCookie(w)
			case err != nil:
				zap.S().Errorw("session_lookup_failed", "error", err)
			case !sess.IsAuthenticated(now()):
				zap.S().Infow("auth_event", "event", "session_expired", "user_id", sess.UserID)
				if err := store.Delete(r.Context(), cookie.Value); err != nil {
					zap.S().Warnw("session_delete_failed", "error", err)
				}
				ClearSessionCookie(w)
			default:
				r = r.WithContext(ContextWithSession(r.Context(), cookie.Value, sess))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext extracts the authenticated session from the request context.
func SessionFromContext(ctx context.Context) (account.Session, bool) {
	st, ok := ctx.Value(authContextKey).(authState)
	return st.session, ok
}

// SessionToken returns the opaque token of the current session, or "".
func SessionToken(ctx context.Context) string {
	st, _ := ctx.Value(authContextKey).(authState)
	return st.token
}

// AccessToken returns the bearer credential of the current session, or "".
// It is the API client's token source.
func AccessToken(ctx context.Context) string {
	st, _ := ctx.Value(authContextKey).(authState)
	return st.session.AccessToken
}

// ContextWithSession returns a context carrying sess under token.
func ContextWithSession(ctx context.Context, token string, sess account.Session) context.Context {
	return context.WithValue(ctx, authContextKey, authState{token: token, session: sess})
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(session.MaxAge / time.Second),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}
