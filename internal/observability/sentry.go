package observability

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

// Options configures error capture. An empty DSN disables it.
type Options struct {
	DSN         string
	Env         string
	Release     string
	RoutePolicy string // tagged on every event

	beforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

const flushTimeout = 2 * time.Second

// InitSentry enables error capture. The returned func flushes buffered events and is
// safe to call when capture is disabled.
func InitSentry(opts Options) (func(), error) {
	if opts.DSN == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Env,
		Release:          opts.Release,
		AttachStacktrace: true,
		BeforeSend:       opts.beforeSend,
	}); err != nil {
		return func() {}, err
	}
	sentry.ConfigureScope(func(s *sentry.Scope) {
		s.SetTag("service", "eduadmin")
		if opts.RoutePolicy != "" {
			s.SetTag("route_policy", opts.RoutePolicy)
		}
	})
	return func() { sentry.Flush(flushTimeout) }, nil
}

// CaptureErr reports err. Without a prior InitSentry it is a no-op.
func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

// CaptureRequestErr reports err with the console request that produced it. Cookies
// and headers are left out as they carry the session token.
func CaptureRequestErr(r *http.Request, err error) {
	if err == nil {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(s *sentry.Scope) {
		s.SetTag("method", r.Method)
		s.SetTag("path", r.URL.Path)
	})
	hub.CaptureException(err)
}
