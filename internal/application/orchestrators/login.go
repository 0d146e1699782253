package orchestrators

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"eduadmin/internal/adapters/api"
	"eduadmin/internal/application/crud"
	"eduadmin/internal/domain/account"
)

// Sender is the API gateway subset used by write flows.
type Sender interface {
	Send(ctx context.Context, method, path string, body api.Body, out any) error
}

// LoginInput carries the login form.
type LoginInput struct {
	Identifier string // email or phone number
	Password   string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	API Sender
	Now func() time.Time
}

var (
	ErrInvalidCredentials = errors.New("invalid email, phone number or password")
	ErrNoRole             = errors.New("login response carries no role")
)

// loginResponse accepts the token layouts the API has used.
type loginResponse struct {
	Access      string `json:"access"`
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	Refresh     string `json:"refresh"`
	Role        string `json:"role"`
	UserID      any    `json:"user_id"`
	Email       string `json:"email"`
	User        *struct {
		ID    any    `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func (r loginResponse) accessToken() string {
	for _, t := range []string{r.Access, r.AccessToken, r.Token} {
		if t != "" {
			return t
		}
	}
	return ""
}

// ExecuteLogin exchanges credentials for a session. The identifier is sent as email
// when it contains '@' and as phone_number otherwise. One attempt, no retry.
// PRE: none
// POST: returns an authenticated session, or ErrInvalidCredentials / ErrNoRole with no session
// INVARIANT: the returned session has a non-empty role
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (account.Session, error) {
	creds, err := account.BuildCredentials(input.Identifier, input.Password)
	if err != nil {
		return account.Session{}, ErrInvalidCredentials
	}

	var resp loginResponse
	if err := deps.API.Send(ctx, http.MethodPost, string(api.Login), api.JSON(creds), &resp); err != nil {
		zap.S().Infow("auth_event", "event", "login_failed", "identifier", creds.Masked(), "reason", api.Classify(err).String())
		return account.Session{}, ErrInvalidCredentials
	}
	token := resp.accessToken()
	if token == "" {
		zap.S().Warnw("auth_event", "event", "login_failed", "identifier", creds.Masked(), "reason", "no_token")
		return account.Session{}, ErrInvalidCredentials
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	sess := account.Session{
		Role:         resp.Role,
		AccessToken:  token,
		RefreshToken: resp.Refresh,
		CreatedAt:    now(),
	}
	sess.UserID = crud.Stringify(resp.UserID)
	sess.Email = resp.Email
	if resp.User != nil {
		if sess.UserID == "" {
			sess.UserID = crud.Stringify(resp.User.ID)
		}
		if sess.Email == "" {
			sess.Email = resp.User.Email
		}
		if sess.Role == "" {
			sess.Role = resp.User.Role
		}
	}
	applyTokenClaims(&sess, token)
	if sess.Email == "" {
		sess.Email = creds.Email
	}

	if sess.Role == account.RoleNone {
		zap.S().Warnw("auth_event", "event", "login_failed", "identifier", creds.Masked(), "reason", "no_role")
		return account.Session{}, ErrNoRole
	}
	zap.S().Infow("auth_event", "event", "login", "user_id", sess.UserID, "role", sess.Role)
	return sess, nil
}

// applyTokenClaims fills gaps from the access token's claims. The signature is not
// checked here; the API verifies it on every call.
func applyTokenClaims(sess *account.Session, token string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		sess.ExpiresAt = exp.Time
	}
	if sess.Role == "" {
		if role, ok := claims["role"].(string); ok {
			sess.Role = role
		}
	}
	if sess.UserID == "" {
		sess.UserID = crud.Stringify(claims["user_id"])
	}
}
