package account

import (
	"errors"
	"strings"
	"time"
)

// Role constants as the REST API spells them.
const (
	RoleNone   = ""
	RoleUser   = "USER"
	RoleParent = "PARENT"
	RoleStaff  = "STAFF"
	RoleAdmin  = "ADMIN"
)

// ValidRoles contains every role the API may assign.
var ValidRoles = []string{RoleUser, RoleParent, RoleStaff, RoleAdmin}

// Domain errors
var (
	ErrEmptyIdentifier = errors.New("email or phone number cannot be empty")
	ErrEmptyPassword   = errors.New("password cannot be empty")
	ErrInvalidEmail    = errors.New("email must contain '@'")
	ErrMissingField    = errors.New("required field is empty")
)

// IsValidRole reports whether role is one of ValidRoles.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Identity is who the session belongs to, as reported by the API at login.
type Identity struct {
	UserID string
	Email  string
}

// Session is the authenticated state of one browser.
// INVARIANT: a session with an empty Role is not authenticated
type Session struct {
	Identity
	Role         string
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	ExpiresAt    time.Time // zero when the access credential carries no expiry
}

// IsAuthenticated reports whether the session unlocks anything beyond login and registration.
// PRE: none
// POST: true iff Role is non-empty and the credential has not expired at now
func (s Session) IsAuthenticated(now time.Time) bool {
	if s.Role == RoleNone {
		return false
	}
	if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
		return false
	}
	return true
}

// Credentials is the login payload. Exactly one of Email and PhoneNumber is set.
type Credentials struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Password    string `json:"password"`
}

// BuildCredentials classifies identifier as an email when it contains '@' and as a
// phone number otherwise.
// PRE: none
// POST: returns credentials with exactly one identifier key, or a validation error
func BuildCredentials(identifier, password string) (Credentials, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Credentials{}, ErrEmptyIdentifier
	}
	if password == "" {
		return Credentials{}, ErrEmptyPassword
	}
	if strings.Contains(identifier, "@") {
		return Credentials{Email: identifier, Password: password}, nil
	}
	return Credentials{PhoneNumber: identifier, Password: password}, nil
}

// Masked returns the identifier with most characters hidden, for logs.
// Emails keep the first letter and the domain; phone numbers keep the last four digits.
func (c Credentials) Masked() string {
	if c.Email != "" {
		local, domain, _ := strings.Cut(c.Email, "@")
		if local == "" {
			return "***@" + domain
		}
		return string([]rune(local)[:1]) + "***@" + domain
	}
	p := c.PhoneNumber
	if len(p) <= 4 {
		return "***"
	}
	return "***" + p[len(p)-4:]
}

// Registration is the self-service sign-up payload.
type Registration struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	IIN         string `json:"iin"`
	Role        string `json:"role"`
}

// RegistrationRole returns the role a self-registering person receives.
func RegistrationRole(isParent bool) string {
	if isParent {
		return RoleParent
	}
	return RoleUser
}

// Validate checks that every field the API requires is present.
// PRE: Registration struct is populated
// POST: Returns nil if valid, error otherwise
func (r Registration) Validate() error {
	for _, v := range []string{r.Email, r.FirstName, r.LastName, r.PhoneNumber, r.Password} {
		if strings.TrimSpace(v) == "" {
			return ErrMissingField
		}
	}
	if !strings.Contains(r.Email, "@") {
		return ErrInvalidEmail
	}
	if r.Role != RoleUser && r.Role != RoleParent {
		return errors.New("self registration role must be USER or PARENT")
	}
	return nil
}
