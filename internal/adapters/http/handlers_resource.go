package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"eduadmin/internal/adapters/api"
	"eduadmin/internal/adapters/http/middleware"
	"eduadmin/internal/application/crud"
	"eduadmin/internal/application/listutil"
	"eduadmin/internal/domain/routing"
)

// maxUploadBytes bounds one multipart submission.
const maxUploadBytes = 32 << 20

type actionForm struct {
	Action crud.Action
	Record crud.Record
}

// resourcePage is the data of the generic list screen.
type resourcePage struct {
	crud.State
	Paged      bool
	PageInfo   listutil.PageInfo
	Query      url.Values
	ActionForm *actionForm
	Fields     []crud.Field
}

// resourceView resolves the route's resource and the session's view of it.
func (s *Server) resourceView(r *http.Request, d routing.Decision) (*crud.Resource, *crud.View, bool) {
	res, ok := s.catalog[d.Route.Resource]
	if !ok {
		return nil, nil, false
	}
	return res, s.viewFor(middleware.SessionToken(r.Context()), res), true
}

// listURL is where POSTs land afterwards: the list as it now stands, without a refetch.
func listURL(res *crud.Resource) string {
	return "/" + res.Name + "?keep=1"
}

// ensureLoaded mounts the view once so modals and actions have records to work on.
func ensureLoaded(ctx context.Context, v *crud.View, q url.Values) {
	if v.Snapshot().Loaded {
		return
	}
	res := v.Resource()
	_ = v.Load(ctx, res.FiltersFrom(q), listutil.ParsePage(q))
}

// handleResourceList serves the list screen (GET) and draft submission (POST).
//
// GET query parameters:
//   - filters and page: refetch with them (local-filter resources only re-filter)
//   - keep=1: show the current state without fetching
//   - modal=create or modal=edit&id=N: open a draft
func (s *Server) handleResourceList(w http.ResponseWriter, r *http.Request, d routing.Decision) {
	res, v, ok := s.resourceView(r, d)
	if !ok {
		s.renderNotFound(w, r, routing.ViewCommonNotFound)
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		s.submitDraft(w, r, res, v)
		return
	default:
		methodNotAllowed(w, "GET, POST")
		return
	}

	q := r.URL.Query()
	switch q.Get("modal") {
	case "create":
		ensureLoaded(ctx, v, q)
		if err := v.OpenCreate(); err != nil {
			s.renderNotFound(w, r, routing.ViewNotFound)
			return
		}
	case "edit":
		ensureLoaded(ctx, v, q)
		if err := v.OpenEdit(q.Get("id")); err != nil {
			zap.S().Infow("edit_unavailable", "resource", res.Name, "id", q.Get("id"), "error", err)
			s.renderNotFound(w, r, routing.ViewNotFound)
			return
		}
	default:
		s.applyNavigation(ctx, v, q)
	}
	s.renderResource(w, r, http.StatusOK, v, nil)
}

func (s *Server) applyNavigation(ctx context.Context, v *crud.View, q url.Values) {
	res := v.Resource()
	cur := v.Snapshot()
	if q.Get("keep") == "1" && cur.Loaded {
		return
	}
	// Any other visit leaves the modal behind.
	v.Cancel()
	v.ClearResult()
	filters, page := res.FiltersFrom(q), listutil.ParsePage(q)
	if res.FilterMode == crud.FilterLocal && cur.Loaded && page == cur.Page {
		v.SetFilters(filters)
		return
	}
	if err := v.Load(ctx, filters, page); err != nil && !errors.Is(err, crud.ErrStale) {
		zap.S().Debugw("view_load_incomplete", "resource", res.Name, "error", err)
	}
}

// submitDraft applies the posted form to the draft named by the hidden mode fields and
// sends it. That draft is reopened when the server holds another one or none at all.
func (s *Server) submitDraft(w http.ResponseWriter, r *http.Request, res *crud.Resource, v *crud.View) {
	files, err := parseUpload(w, r)
	if err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	mode, id := crud.ParseDraftMode(r.PostForm.Get("_mode")), r.PostForm.Get("_id")
	ensureLoaded(ctx, v, r.URL.Query())
	if err := v.ApplyForm(mode, id, r.PostForm, files); err != nil {
		zap.S().Infow("draft_unavailable", "resource", res.Name, "mode", r.PostForm.Get("_mode"), "id", id, "error", err)
		s.renderNotFound(w, r, routing.ViewNotFound)
		return
	}

	err = v.Submit(ctx)
	switch {
	case err == nil:
		http.Redirect(w, r, listURL(res), http.StatusSeeOther)
	case errors.Is(err, crud.ErrInvalidDraft):
		s.renderResource(w, r, http.StatusUnprocessableEntity, v, nil)
	default:
		s.renderResource(w, r, http.StatusOK, v, nil)
	}
}

func (s *Server) handleResourceCancel(w http.ResponseWriter, r *http.Request, d routing.Decision) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	res, v, ok := s.resourceView(r, d)
	if !ok {
		s.renderNotFound(w, r, routing.ViewCommonNotFound)
		return
	}
	v.Cancel()
	v.ClearResult()
	http.Redirect(w, r, listURL(res), http.StatusSeeOther)
}

func (s *Server) handleResourceDelete(w http.ResponseWriter, r *http.Request, d routing.Decision) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	res, v, ok := s.resourceView(r, d)
	if !ok {
		s.renderNotFound(w, r, routing.ViewCommonNotFound)
		return
	}
	if err := v.Delete(r.Context(), d.Params["id"]); errors.Is(err, crud.ErrNotAllowed) {
		s.renderNotFound(w, r, routing.ViewNotFound)
		return
	}
	http.Redirect(w, r, listURL(res), http.StatusSeeOther)
}

// handleResourceAction shows an action's input form (GET) or runs it (POST).
// Actions without inputs that only read are run directly on GET.
func (s *Server) handleResourceAction(w http.ResponseWriter, r *http.Request, d routing.Decision) {
	res, v, ok := s.resourceView(r, d)
	if !ok {
		s.renderNotFound(w, r, routing.ViewCommonNotFound)
		return
	}
	act, ok := res.Action(d.Params["action"])
	if !ok {
		s.renderNotFound(w, r, routing.ViewNotFound)
		return
	}
	id := d.Params["id"]
	ctx := r.Context()
	ensureLoaded(ctx, v, r.URL.Query())

	var in crud.ActionInput
	switch {
	case r.Method == http.MethodGet && len(act.Fields) > 0:
		rec, found := v.Find(id)
		if !found {
			s.renderNotFound(w, r, routing.ViewNotFound)
			return
		}
		s.renderResource(w, r, http.StatusOK, v, &actionForm{Action: act, Record: rec})
		return
	case r.Method == http.MethodGet && act.Method == http.MethodGet:
	case r.Method == http.MethodPost:
		files, err := parseUpload(w, r)
		if err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		in = crud.ActionInput{Values: r.PostForm, Files: files}
	default:
		methodNotAllowed(w, "POST")
		return
	}

	_, err := v.Transition(ctx, act.Name, id, in)
	switch {
	case errors.Is(err, crud.ErrNotFound), errors.Is(err, crud.ErrNotAllowed):
		s.renderNotFound(w, r, routing.ViewNotFound)
		return
	case errors.Is(err, crud.ErrInvalidDraft):
		rec, _ := v.Find(id)
		s.renderResource(w, r, http.StatusUnprocessableEntity, v, &actionForm{Action: act, Record: rec})
		return
	}
	http.Redirect(w, r, listURL(res), http.StatusSeeOther)
}

func (s *Server) renderResource(w http.ResponseWriter, r *http.Request, status int, v *crud.View, form *actionForm) {
	state := v.Snapshot()
	res := state.Resource
	data := resourcePage{
		State:      state,
		Paged:      res.Shape == crud.ShapePaged,
		Query:      state.Filters.Query(),
		ActionForm: form,
		Fields:     formFields(res, state.Draft),
	}
	if data.Paged {
		data.PageInfo = listutil.NewPageInfo(state.Page, s.cfg.APIPageSize, state.Total)
	}
	s.render(w, r, status, "resource.html", s.pageData(r, res.Title, data))
}

// formFields lists the inputs of the open draft; create-only fields are hidden when editing.
func formFields(res *crud.Resource, d *crud.Draft) []crud.Field {
	if d == nil {
		return nil
	}
	out := make([]crud.Field, 0, len(res.Fields))
	for _, f := range res.Fields {
		if d.Mode == crud.DraftEdit && f.CreateOnly {
			continue
		}
		out = append(out, f)
	}
	return out
}

// parseUpload parses a urlencoded or multipart body and reads every uploaded file.
func parseUpload(w http.ResponseWriter, r *http.Request) ([]api.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	if r.MultipartForm == nil {
		return nil, nil
	}
	fields := make([]string, 0, len(r.MultipartForm.File))
	for field := range r.MultipartForm.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var files []api.File
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("open upload %s: %w", field, err)
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read upload %s: %w", field, err)
			}
			if len(content) == 0 {
				continue
			}
			files = append(files, api.File{Field: field, Filename: fh.Filename, Content: content})
		}
	}
	return files, nil
}
