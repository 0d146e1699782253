package orchestrators

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"eduadmin/internal/adapters/api"
	"eduadmin/internal/domain/account"
)

// MsgRegistrationFailed is shown when self registration is rejected.
const MsgRegistrationFailed = "Ошибка регистрации"

// ErrRegistrationFailed carries MsgRegistrationFailed.
var ErrRegistrationFailed = errors.New(MsgRegistrationFailed)

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	IIN         string
	Password    string
	IsParent    bool
}

// RegisterDeps holds dependencies for Register.
type RegisterDeps struct {
	API Sender
}

// ExecuteRegister creates a USER or PARENT account. It never creates a session.
// PRE: none
// POST: returns nil on success, ErrRegistrationFailed on any failure
func ExecuteRegister(ctx context.Context, input RegisterInput, deps RegisterDeps) error {
	reg := account.Registration{
		Email:       strings.TrimSpace(input.Email),
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		IIN:         strings.TrimSpace(input.IIN),
		Password:    input.Password,
		Role:        account.RegistrationRole(input.IsParent),
	}
	if err := reg.Validate(); err != nil {
		zap.S().Infow("auth_event", "event", "register_rejected", "email", reg.Email, "reason", err.Error())
		return ErrRegistrationFailed
	}
	if err := deps.API.Send(ctx, http.MethodPost, string(api.Register), api.JSON(reg), nil); err != nil {
		zap.S().Warnw("auth_event", "event", "register_failed", "email", reg.Email, "error", err)
		return ErrRegistrationFailed
	}
	zap.S().Infow("auth_event", "event", "registered", "email", reg.Email, "role", reg.Role)
	return nil
}
