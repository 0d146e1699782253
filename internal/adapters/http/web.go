package web

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"eduadmin/internal/adapters/email"
	"eduadmin/internal/adapters/http/middleware"
	"eduadmin/internal/adapters/http/perf"
	"eduadmin/internal/adapters/storage/session"
	"eduadmin/internal/application/crud"
	"eduadmin/internal/application/orchestrators"
	"eduadmin/internal/application/resources"
	"eduadmin/internal/config"
	"eduadmin/internal/domain/routing"
	"eduadmin/internal/metrics"
)

// Gateway is the REST API as the console uses it.
type Gateway interface {
	crud.Gateway
}

// Deps holds everything the console needs from the outside.
type Deps struct {
	API       Gateway
	Sessions  session.Store
	Collector *perf.Collector
	Mailer    email.Sender
	// Outbox queues welcome emails the mailer rejected; nil returns the error instead.
	Outbox orchestrators.OutboxWriter
	// Ping checks the session database for /healthz; nil reports healthy.
	Ping func(ctx context.Context) error
}

// Server renders the console. Handlers are bound to views named by the route registry,
// and every navigation goes through the gate first.
type Server struct {
	cfg       config.Config
	deps      Deps
	gate      *routing.Gate
	catalog   map[string]*crud.Resource
	views     *viewRegistry
	templates *templateSet
	handlers  map[string]viewHandler
	now       func() time.Time
}

// viewHandler serves one allowed navigation.
type viewHandler func(w http.ResponseWriter, r *http.Request, d routing.Decision)

// NewServer parses templates and binds views.
// PRE: deps.API and deps.Sessions are non-nil
// POST: returns a server whose gate uses the configured policy
func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	tpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	if deps.Mailer == nil {
		deps.Mailer = email.NewNoopSender()
	}
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		gate:      routing.NewGate(routing.ConsoleRegistry(), routing.PolicyByName(cfg.RoutePolicy)),
		catalog:   resources.Catalog(),
		views:     newViewRegistry(),
		templates: tpl,
		now:       time.Now,
	}
	s.handlers = map[string]viewHandler{
		routing.ViewLogin:          s.handleLogin,
		routing.ViewRegister:       s.handleRegister,
		routing.ViewLogout:         s.handleLogout,
		routing.ViewHome:           s.handleHome,
		routing.ViewProfile:        s.handleProfile,
		routing.ViewDashboard:      s.handleDashboard,
		routing.ViewPerformance:    s.handlePerformance,
		routing.ViewCenterDetail:   s.handleCenterDetail,
		routing.ViewSectionDetail:  s.handleSectionDetail,
		routing.ViewResourceList:   s.handleResourceList,
		routing.ViewResourceCancel: s.handleResourceCancel,
		routing.ViewResourceDelete: s.handleResourceDelete,
		routing.ViewResourceAction: s.handleResourceAction,
		routing.ViewResourceExport: s.handleResourceExport,
	}
	return s, nil
}

// routes serves static assets, health and metrics outside the gate and everything
// else through it.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/static/", s.staticHandler())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/", middleware.Auth(s.deps.Sessions, s.now)(http.HandlerFunc(s.dispatch)))
	return mux
}

// Handler returns the console wrapped in the middleware chain.
// Order, outermost first: Recover, Timing, RateLimit, SecurityHeaders, CSRF, then Auth
// inside the gated mux.
func (s *Server) Handler(ctx context.Context) http.Handler {
	middleware.SecureCookies = s.cfg.SecureCookies
	limiter := middleware.NewRateLimiter(ctx, s.cfg.RateLimit, time.Second)
	return middleware.Chain(s.routes(),
		middleware.CSRF(s.cfg.CSRFKey, s.cfg.SecureCookies, trustedOrigins(s.cfg.Addr)),
		middleware.SecurityHeaders,
		middleware.RateLimit(limiter),
		middleware.Timing(s.deps.Collector, s.cfg.SlowRequestMs),
		middleware.Recover,
	)
}

// PruneViews drops view state idle since before cutoff.
func (s *Server) PruneViews(cutoff time.Time) int {
	return s.views.Prune(cutoff)
}

func (s *Server) staticHandler() http.Handler {
	if s.cfg.StaticDir != "" {
		return http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	sub, _ := fs.Sub(staticFS, "static")
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// trustedOrigins lets forms posted from the console's own listen address through
// the CSRF origin check during development.
func trustedOrigins(addr string) []string {
	port := addr
	if len(port) > 0 && port[0] == ':' {
		return []string{"localhost" + port, "127.0.0.1" + port}
	}
	return []string{addr}
}
