package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"eduadmin/internal/adapters/api"
	"eduadmin/internal/application/crud"
)

// ErrMissingID is returned when an update has no target id.
var ErrMissingID = errors.New("id is required")

// UpdateProfileInput carries the profile form.
type UpdateProfileInput struct {
	UserID      string
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
}

// UpdateDeps holds dependencies for detail updates.
type UpdateDeps struct {
	API Sender
}

// ExecuteUpdateProfile replaces the user's own profile fields.
// PRE: UserID is non-empty
// POST: returns the record the API acknowledged
func ExecuteUpdateProfile(ctx context.Context, input UpdateProfileInput, deps UpdateDeps) (crud.Record, error) {
	if input.UserID == "" {
		return nil, ErrMissingID
	}
	payload := map[string]string{
		"email":        strings.TrimSpace(input.Email),
		"first_name":   strings.TrimSpace(input.FirstName),
		"last_name":    strings.TrimSpace(input.LastName),
		"phone_number": strings.TrimSpace(input.PhoneNumber),
	}
	var out map[string]any
	if err := deps.API.Send(ctx, http.MethodPut, api.Users.Item(input.UserID), api.JSON(payload), &out); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	zap.S().Infow("profile_event", "event", "profile_updated", "user_id", input.UserID)
	return crud.Record(out), nil
}

// UpdateCenterInput carries the center detail form.
type UpdateCenterInput struct {
	CenterID    string
	Name        string
	Description string
	Location    string
	Link        string
}

// ExecuteUpdateCenter replaces a center's descriptive fields.
// PRE: CenterID is non-empty; Name is non-empty
// POST: returns the record the API acknowledged
func ExecuteUpdateCenter(ctx context.Context, input UpdateCenterInput, deps UpdateDeps) (crud.Record, error) {
	if input.CenterID == "" {
		return nil, ErrMissingID
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.New("center name is required")
	}
	payload := map[string]string{
		"name":        strings.TrimSpace(input.Name),
		"description": input.Description,
		"location":    strings.TrimSpace(input.Location),
		"link":        strings.TrimSpace(input.Link),
	}
	var out map[string]any
	if err := deps.API.Send(ctx, http.MethodPut, api.Centers.Item(input.CenterID), api.JSON(payload), &out); err != nil {
		return nil, fmt.Errorf("update center %s: %w", input.CenterID, err)
	}
	zap.S().Infow("center_event", "event", "center_updated", "center_id", input.CenterID)
	return crud.Record(out), nil
}
