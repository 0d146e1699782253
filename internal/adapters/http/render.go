package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"eduadmin/internal/adapters/http/middleware"
	"eduadmin/internal/application/crud"
	"eduadmin/internal/application/listutil"
	"eduadmin/internal/application/resources"
	"eduadmin/internal/domain/account"
	"eduadmin/internal/domain/routing"
	"eduadmin/internal/observability"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var mdRenderer = goldmark.New()

// pages lists every page template; each is parsed together with layout.html.
var pages = []string{
	"login.html",
	"register.html",
	"profile.html",
	"dashboard.html",
	"performance.html",
	"center_detail.html",
	"section_detail.html",
	"resource.html",
	"not_found.html",
	"forbidden.html",
}

type templateSet struct {
	pages map[string]*template.Template
}

// requestFuncs are rebound for every render; the parse-time versions are placeholders.
func requestFuncs(r *http.Request) template.FuncMap {
	sess, ok := middleware.SessionFromContext(r.Context())
	return template.FuncMap{
		"currentRole":  func() string { return sess.Role },
		"currentEmail": func() string { return sess.Email },
		"isLoggedIn":   func() bool { return ok && sess.Role != account.RoleNone },
		"csrfField":    func() template.HTML { return csrf.TemplateField(r) },
		"currentPath":  func() string { return r.URL.Path },
	}
}

func staticFuncs() template.FuncMap {
	return template.FuncMap{
		"renderMarkdown": func(md string) template.HTML {
			var buf bytes.Buffer
			if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
				return template.HTML(template.HTMLEscapeString(md))
			}
			return template.HTML(buf.String())
		},
		"formatDate": resources.FormatDate,
		"weekDays":   func() []string { return resources.WeekDays },
		"str":        crud.Stringify,
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"cell": func(c crud.Column, r crud.Record, lk crud.Lookups) string {
			return c.Value(r, lk)
		},
		"inputType": inputType,
		"options":   fieldOptions,
		"slots":     weeklySlots,
		"isKind": func(k crud.FieldKind, name string) bool {
			return kindName(k) == name
		},
		"list": func(items ...any) []any { return items },
		"visible": func(a crud.Action, r crud.Record) bool {
			return a.Visible == nil || a.Visible(r)
		},
		"syllabuses": syllabusTexts,
		"pageLink":   listutil.Link,
		"pretty":     prettyJSON,
	}
}

func parseTemplates() (*templateSet, error) {
	funcs := staticFuncs()
	for name, fn := range requestFuncs(&http.Request{}) {
		funcs[name] = fn
	}
	ts := &templateSet{pages: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		tpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		ts.pages[page] = tpl
	}
	return ts, nil
}

// render writes page with status. Output is buffered so a failing template never
// produces half a page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	base, ok := s.templates.pages[page]
	if !ok {
		internalError(w, fmt.Errorf("unknown template %s", page))
		return
	}
	tpl, err := base.Clone()
	if err != nil {
		internalError(w, err)
		return
	}
	tpl.Funcs(requestFuncs(r))
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, fmt.Errorf("render %s: %w", page, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	zap.S().Errorw("internal_error", "error", err)
	observability.CaptureErr(err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// navItem is one entry of the console menu.
type navItem struct {
	Path  string
	Label string
}

var consoleNav = []navItem{
	{"/dashboard", "Главная"},
	{"/centers", "Центры"},
	{"/sections", "Секции"},
	{"/schedules", "Расписание"},
	{"/records", "Записи"},
	{"/subscriptions", "Абонементы"},
	{"/users", "Пользователи"},
	{"/profile", "Профиль"},
}

// nav returns the menu entries the gate lets sess reach.
func (s *Server) nav(sess account.Session) []navItem {
	out := make([]navItem, 0, len(consoleNav))
	for _, item := range consoleNav {
		if d := s.gate.Decide(item.Path, sess); d.Outcome == routing.Allow {
			out = append(out, item)
		}
	}
	return out
}

// page is the data every page template receives.
type page struct {
	Title string
	Nav   []navItem
	Flash string
	Data  any
}

func (s *Server) pageData(r *http.Request, title string, data any) page {
	sess, _ := middleware.SessionFromContext(r.Context())
	return page{Title: title, Nav: s.nav(sess), Data: data}
}

func inputType(k crud.FieldKind) string {
	switch k {
	case crud.KindEmail:
		return "email"
	case crud.KindPassword:
		return "password"
	case crud.KindNumber:
		return "number"
	case crud.KindDate:
		return "date"
	case crud.KindTime:
		return "time"
	}
	return "text"
}

func kindName(k crud.FieldKind) string {
	switch k {
	case crud.KindTextarea:
		return "textarea"
	case crud.KindBool:
		return "bool"
	case crud.KindSelect:
		return "select"
	case crud.KindMultiSelect:
		return "multiselect"
	case crud.KindFile:
		return "file"
	case crud.KindWeeklyPattern:
		return "weekly"
	}
	return "input"
}

// fieldOptions returns a select's choices, from its static options or its lookup.
func fieldOptions(options []crud.Option, lookup string, lk crud.Lookups) []crud.Option {
	if len(options) > 0 {
		return options
	}
	if ix, ok := lk[lookup]; ok && ix != nil {
		return ix.Options()
	}
	return nil
}

// slot is one weekly pattern row.
type slot struct {
	Day, Start, End string
}

// weeklySlots returns the draft's pattern rows plus one blank row for adding.
func weeklySlots(d *crud.Draft, field string) []slot {
	var out []slot
	if d != nil {
		list, _ := d.Values[field].([]any)
		for _, e := range list {
			m, _ := e.(map[string]any)
			out = append(out, slot{
				Day:   crud.Stringify(m["day"]),
				Start: trimSeconds(crud.Stringify(m["start_time"])),
				End:   trimSeconds(crud.Stringify(m["end_time"])),
			})
		}
	}
	return append(out, slot{})
}

// trimSeconds turns "09:00:00" into the "09:00" a time input expects.
func trimSeconds(t string) string {
	if strings.Count(t, ":") == 2 {
		return t[:strings.LastIndex(t, ":")]
	}
	return t
}

// syllabusTexts extracts the markdown bodies of a syllabuses response.
func syllabusTexts(data any) []string {
	m, _ := data.(map[string]any)
	list, _ := m["syllabuses"].([]any)
	out := make([]string, 0, len(list))
	for _, e := range list {
		switch v := e.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			for _, key := range []string{"content", "text", "syllabus"} {
				if s := crud.Stringify(v[key]); s != "" {
					out = append(out, s)
					break
				}
			}
		}
	}
	return out
}

// prettyJSON renders an action response that has no dedicated layout.
func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return crud.Stringify(v)
	}
	return string(b)
}
