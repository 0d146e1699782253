package browser_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"eduadmin/internal/adapters/api"
	web "eduadmin/internal/adapters/http"
	"eduadmin/internal/adapters/http/middleware"
	"eduadmin/internal/adapters/http/perf"
	"eduadmin/internal/adapters/storage"
	"eduadmin/internal/adapters/storage/session"
	"eduadmin/internal/config"
)

// fakeAPI is a small in-memory REST backend with one admin and one staff login.
type fakeAPI struct {
	mu      sync.Mutex
	centers []map[string]any
	nextID  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		centers: []map[string]any{
			{"id": 1, "name": "Alpha", "location": "Almaty"},
		},
		nextID: 2,
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method + " " + r.URL.Path {
	case "POST /user/login/":
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		role := map[string]string{"admin@test.com": "ADMIN", "staff@test.com": "STAFF"}[creds["email"]]
		if role == "" || creds["password"] != "TestPass123!" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"bad credentials"}`)
			return
		}
		fmt.Fprintf(w, `{"access":"tok-%s","role":%q,"user_id":1,"email":%q}`, role, role, creds["email"])
	case "GET /api/centers/":
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.centers)
	case "POST /api/centers/":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		c := map[string]any{"id": f.nextID, "name": r.FormValue("name"), "location": r.FormValue("location")}
		f.nextID++
		f.centers = append(f.centers, c)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(c)
	case "GET /user/users/":
		io.WriteString(w, `[]`)
	case "GET /api/sections/", "GET /api/categories/":
		io.WriteString(w, `[]`)
	case "GET /api/dashboard/metrics/":
		io.WriteString(w, `{"users":3,"centers":1}`)
	case "GET /api/dashboard/recent-activities/", "GET /api/dashboard/notifications/":
		io.WriteString(w, `[]`)
	default:
		http.NotFound(w, r)
	}
}

// testApp holds the running console and Playwright handles.
type testApp struct {
	BaseURL string
	API     *fakeAPI
	Browser playwright.Browser
}

// newTestApp wires the console against a fake API and a temp SQLite session store,
// then launches headless Chromium. The test is skipped when no browser driver exists.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	fake := newFakeAPI()
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	db, err := storage.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	collector := perf.NewCollector(perf.DefaultRingSize)
	timed := storage.NewTimedDB(db, collector, 100)

	var key [32]byte
	copy(key[:], "browser-test-session-key-0123456")
	store := session.NewSQLiteStore(timed, session.NewSealer(key))

	client, err := api.New(upstream.URL+"/",
		api.WithTokenSource(middleware.AccessToken),
		api.WithCollector(collector),
	)
	if err != nil {
		t.Fatalf("api client: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()

	cfg := config.Config{
		Addr:        addr,
		Env:         "development",
		RoutePolicy: config.PolicyStrict,
		APIPageSize: 10,
		RateLimit:   1000,
		CSRFKey:     []byte("browser-test-csrf-key-0123456789"),
		SessionKey:  key,
	}
	srv, err := web.NewServer(cfg, web.Deps{
		API:       client,
		Sessions:  store,
		Collector: collector,
		Ping:      timed.Ping,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	httpSrv := &http.Server{Handler: srv.Handler(ctx)}
	go httpSrv.Serve(listener)
	t.Cleanup(func() {
		cancel()
		httpSrv.Close()
	})

	pw, err := playwright.Run()
	if err != nil {
		t.Skipf("playwright driver unavailable: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		pw.Stop()
		t.Skipf("chromium unavailable: %v", err)
	}
	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
	})

	return &testApp{BaseURL: "http://" + addr, API: fake, Browser: browser}
}

// newPage opens a fresh browser context so cookies never leak between subtests.
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	bctx, err := a.Browser.NewContext()
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	t.Cleanup(func() { bctx.Close() })
	page, err := bctx.NewPage()
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	return page
}

// login submits the login form and waits for the landing page.
func (a *testApp) login(t *testing.T, page playwright.Page, email, landing string) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/login"); err != nil {
		t.Fatalf("goto login: %v", err)
	}
	if err := page.Locator("input[name=identifier]").Fill(email); err != nil {
		t.Fatalf("fill identifier: %v", err)
	}
	if err := page.Locator("input[name=password]").Fill("TestPass123!"); err != nil {
		t.Fatalf("fill password: %v", err)
	}
	if err := page.Locator("button[type=submit]").Click(); err != nil {
		t.Fatalf("click login: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+landing, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("login did not land on %s: %v", landing, err)
	}
}

// waitVisible fails the test when sel does not appear within five seconds.
func waitVisible(t *testing.T, page playwright.Page, sel string) {
	t.Helper()
	err := page.Locator(sel).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(5 * time.Second / time.Millisecond)),
	})
	if err != nil {
		t.Fatalf("%s not visible: %v", sel, err)
	}
}
