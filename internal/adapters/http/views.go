package web

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"eduadmin/internal/application/crud"
	"eduadmin/internal/application/orchestrators"
	"eduadmin/internal/domain/routing"
)

// viewRegistry keeps one CRUD view per (session, resource).
type viewRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionViews
}

type sessionViews struct {
	views    map[string]*crud.View
	lastUsed time.Time
}

func newViewRegistry() *viewRegistry {
	return &viewRegistry{sessions: map[string]*sessionViews{}}
}

// get returns the session's view of res, creating it with build on first use.
func (vr *viewRegistry) get(token string, res *crud.Resource, now time.Time, build func() *crud.View) *crud.View {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	sv, ok := vr.sessions[token]
	if !ok {
		sv = &sessionViews{views: map[string]*crud.View{}}
		vr.sessions[token] = sv
	}
	sv.lastUsed = now
	v, ok := sv.views[res.Name]
	if !ok {
		v = build()
		sv.views[res.Name] = v
	}
	return v
}

// Drop forgets every view of a session.
func (vr *viewRegistry) Drop(token string) {
	vr.mu.Lock()
	delete(vr.sessions, token)
	vr.mu.Unlock()
}

// Prune forgets sessions idle since before cutoff and returns how many went.
func (vr *viewRegistry) Prune(cutoff time.Time) int {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	n := 0
	for token, sv := range vr.sessions {
		if sv.lastUsed.Before(cutoff) {
			delete(vr.sessions, token)
			n++
		}
	}
	return n
}

// viewFor returns the current session's view of res.
func (s *Server) viewFor(token string, res *crud.Resource) *crud.View {
	return s.views.get(token, res, s.now(), func() *crud.View {
		v := crud.NewView(res, s.deps.API)
		if res.Name == routing.ResourceUsers {
			v.OnCreated = s.welcomeStaff
		}
		return v
	})
}

// welcomeSendTimeout bounds how long a create waits on the mail provider before the
// welcome mail is left to the outbox.
const welcomeSendTimeout = 5 * time.Second

// welcomeStaff emails a newly created staff member. Failures are queued or logged.
func (s *Server) welcomeStaff(ctx context.Context, values map[string]any) {
	input := orchestrators.StaffWelcomeInput{
		Email:     crud.Stringify(values["email"]),
		FirstName: crud.Stringify(values["first_name"]),
	}
	deps := orchestrators.StaffWelcomeDeps{
		Sender:      s.deps.Mailer,
		From:        s.cfg.EmailFrom,
		Outbox:      s.deps.Outbox,
		SendTimeout: welcomeSendTimeout,
		Now:         s.now,
	}
	if err := orchestrators.ExecuteStaffWelcome(ctx, input, deps); err != nil {
		zap.S().Warnw("staff_welcome_skipped", "email", input.Email, "error", err)
	}
}
