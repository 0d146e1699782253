package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"eduadmin/internal/adapters/api"
	"eduadmin/internal/adapters/email"
	web "eduadmin/internal/adapters/http"
	"eduadmin/internal/adapters/http/middleware"
	"eduadmin/internal/adapters/http/perf"
	"eduadmin/internal/adapters/storage"
	"eduadmin/internal/adapters/storage/outbox"
	"eduadmin/internal/adapters/storage/session"
	"eduadmin/internal/application/orchestrators"
	"eduadmin/internal/config"
	domainOutbox "eduadmin/internal/domain/outbox"
	"eduadmin/internal/logging"
	"eduadmin/internal/observability"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const (
	housekeepingInterval = 10 * time.Minute
	outboxInterval       = time.Minute
	viewIdleCutoff       = 24 * time.Hour
	outboxRetention      = 7 * 24 * time.Hour
	shutdownGrace        = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		zap.S().Errorw("server_exit", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Release == "" {
		cfg.Release = version
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		return err
	}
	defer lg.Closer()

	flush, err := observability.InitSentry(observability.Options{
		DSN:         cfg.SentryDSN,
		Env:         cfg.Env,
		Release:     cfg.Release,
		RoutePolicy: cfg.RoutePolicy,
	})
	if err != nil {
		lg.Sugar.Warnw("sentry_disabled", "error", err)
	}
	defer flush()

	collector := perf.NewCollector(perf.DefaultRingSize)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.MigrateDB(db); err != nil {
		return err
	}
	timed := storage.NewTimedDB(db, collector, cfg.SlowQueryMs)
	store := session.NewSQLiteStore(timed, session.NewSealer(cfg.SessionKey))
	queue := outbox.NewSQLiteStore(timed)

	client, err := api.New(cfg.APIBaseURL,
		api.WithTimeout(cfg.APITimeout),
		api.WithTokenSource(middleware.AccessToken),
		api.WithCollector(collector),
	)
	if err != nil {
		return err
	}

	mailer := email.New(cfg.ResendKey, cfg.EmailFrom)
	if cfg.ResendKey == "" && cfg.IsProduction() {
		lg.Sugar.Warnw("email_disabled", "reason", "EDUADMIN_RESEND_KEY is not set")
	}

	srv, err := web.NewServer(cfg, web.Deps{
		API:       client,
		Sessions:  store,
		Collector: collector,
		Mailer:    mailer,
		Outbox:    queue,
		Ping:      timed.Ping,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processor := orchestrators.NewOutboxProcessor(queue, map[string]orchestrators.ActionExecutor{
		domainOutbox.KindEmail: orchestrators.EmailExecutor{Sender: mailer},
	})
	orchestrators.StartBackgroundWorker(ctx, processor, outboxInterval)
	go housekeeping(ctx, store, queue, srv)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		lg.Sugar.Infow("server_start",
			"version", version,
			"addr", cfg.Addr,
			"env", cfg.Env,
			"api", cfg.APIBaseURL,
			"policy", cfg.RoutePolicy,
			"schema", storage.LatestSchemaVersion(),
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	lg.Sugar.Infow("server_stop", "reason", "signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// housekeeping drops expired sessions, finished outbox rows and idle view state until ctx ends.
func housekeeping(ctx context.Context, store *session.SQLiteStore, queue *outbox.SQLiteStore, srv *web.Server) {
	t := time.NewTicker(housekeepingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.Purge(ctx, now)
			if err != nil {
				zap.S().Warnw("session_purge_failed", "error", err)
			}
			done, err := queue.PurgeTerminal(ctx, now.Add(-outboxRetention))
			if err != nil {
				zap.S().Warnw("outbox_purge_failed", "error", err)
			}
			pruned := srv.PruneViews(now.Add(-viewIdleCutoff))
			if n > 0 || done > 0 || pruned > 0 {
				zap.S().Debugw("housekeeping", "sessions_purged", n, "outbox_purged", done, "views_pruned", pruned)
			}
		}
	}
}
