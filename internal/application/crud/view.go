package crud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eduadmin/internal/adapters/api"
)

// ActionResult is the response of an action kept for display.
type ActionResult struct {
	Action string
	ID     string
	Data   any
}

// State is an immutable copy of a view for rendering.
type State struct {
	Resource *Resource
	Items    []Record
	Total    int
	Page     int
	Filters  Filters
	Lookups  Lookups
	Draft    *Draft
	Notice   string
	Result   *ActionResult
	Loading  bool
	Loaded   bool
}

// View is the list/filter/draft lifecycle of one resource for one session.
// Failures are logged and leave the collection as it was.
// INVARIANT: at most one draft is open
// INVARIANT: items only ever hold server-acknowledged records
type View struct {
	res *Resource
	gw  Gateway

	// OnCreated runs after a successful create with the submitted values.
	OnCreated func(ctx context.Context, values map[string]any)

	mu         sync.Mutex
	items      []Record
	total      int
	page       int
	filters    Filters
	lookups    Lookups
	draft      *Draft
	notice     string
	result     *ActionResult
	generation uint64
	inflight   int
	loaded     bool
}

// NewView returns an idle view with an empty collection.
func NewView(res *Resource, gw Gateway) *View {
	return &View{res: res, gw: gw, filters: Filters{}, lookups: Lookups{}}
}

// Resource returns the view configuration.
func (v *View) Resource() *Resource { return v.res }

// Load is the mount step: lookups and the list are fetched independently, so one
// failing does not stop the other. When filters depend on lookups, lookups go first.
// PRE: none
// POST: every fetch that succeeded and is still current has been applied
func (v *View) Load(ctx context.Context, filters Filters, page int) error {
	if v.res.Query != nil && len(v.res.Lookups) > 0 {
		lerr := v.FetchLookups(ctx)
		ferr := v.FetchList(ctx, filters, page)
		return errors.Join(lerr, ferr)
	}
	var g errgroup.Group
	g.Go(func() error { return v.FetchLookups(ctx) })
	g.Go(func() error { return v.FetchList(ctx, filters, page) })
	return g.Wait()
}

// Refresh refetches with the current filters and page.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	filters, page := v.filters.Clone(), v.page
	v.mu.Unlock()
	return v.FetchList(ctx, filters, page)
}

// SetFilters changes the filter state without fetching. Only meaningful for
// resources filtered locally.
func (v *View) SetFilters(filters Filters) {
	v.mu.Lock()
	v.filters = filters.Clone()
	v.mu.Unlock()
}

// FetchList replaces the collection with the server's answer for filters.
// A response that arrives after a newer FetchList started is discarded with ErrStale.
// PRE: none
// POST: on success items equal the response; on failure items are unchanged
func (v *View) FetchList(ctx context.Context, filters Filters, page int) error {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.filters = filters.Clone()
	v.page = page
	v.notice = ""
	v.inflight++
	lookups := v.lookups
	v.mu.Unlock()

	items, total, err := v.fetch(ctx, filters, page, lookups)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.inflight--
	if gen != v.generation {
		return ErrStale
	}
	var notice *NoticeError
	if errors.As(err, &notice) {
		v.notice = notice.Message
		return err
	}
	if err != nil {
		zap.S().Warnw("list_fetch_failed", "resource", v.res.Name, "error", err)
		return err
	}
	v.items = items
	v.total = total
	v.loaded = true
	return nil
}

func (v *View) fetch(ctx context.Context, filters Filters, page int, lk Lookups) ([]Record, int, error) {
	query := url.Values{}
	if v.res.FilterMode == FilterRemote {
		var err error
		if v.res.Query != nil {
			query, err = v.res.Query(filters, lk)
		} else {
			query = filters.Query()
		}
		if err != nil {
			return nil, 0, err
		}
	}
	return fetchCollection(ctx, v.gw, v.res.Endpoint, v.res.Shape, query, page)
}

// fetchCollection reads one collection in the given shape.
func fetchCollection(ctx context.Context, gw Gateway, ep api.Endpoint, shape ListShape, query url.Values, page int) ([]Record, int, error) {
	if query == nil {
		query = url.Values{}
	}
	if shape == ShapeAll {
		query.Set("page", "all")
		var items []Record
		if err := gw.Get(ctx, string(ep), query, &items); err != nil {
			return nil, 0, err
		}
		return items, len(items), nil
	}
	if page > 1 {
		query.Set("page", strconv.Itoa(page))
	}
	var out struct {
		Count   int      `json:"count"`
		Results []Record `json:"results"`
	}
	if err := gw.Get(ctx, string(ep), query, &out); err != nil {
		return nil, 0, err
	}
	if out.Results == nil {
		return nil, 0, fmt.Errorf("%s: paginated response without results", ep)
	}
	return out.Results, out.Count, nil
}

// FetchLookups refreshes every lookup index. Each lookup fails independently.
func (v *View) FetchLookups(ctx context.Context) error {
	if len(v.res.Lookups) == 0 {
		return nil
	}
	var (
		mu   sync.Mutex
		errs []error
		next = Lookups{}
		g    errgroup.Group
	)
	for _, lk := range v.res.Lookups {
		g.Go(func() error {
			items, _, err := fetchCollection(ctx, v.gw, lk.Endpoint, lk.Shape, nil, 0)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.S().Warnw("lookup_fetch_failed", "resource", v.res.Name, "lookup", lk.Name, "error", err)
				errs = append(errs, err)
				return nil
			}
			next[lk.Name] = NewIndex(items, lk.Label)
			return nil
		})
	}
	_ = g.Wait()

	v.mu.Lock()
	merged := Lookups{}
	for k, ix := range v.lookups {
		merged[k] = ix
	}
	for k, ix := range next {
		merged[k] = ix
	}
	v.lookups = merged
	v.mu.Unlock()
	return errors.Join(errs...)
}

// OpenCreate opens an empty draft, replacing any open one.
func (v *View) OpenCreate() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.openLocked(DraftCreate, "")
}

// OpenEdit opens a draft holding the editable fields of the record with id.
// PRE: the record is in the current collection
// POST: the draft replaces any open one
func (v *View) OpenEdit(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.openLocked(DraftEdit, id)
}

func (v *View) openLocked(mode DraftMode, id string) error {
	if mode == DraftCreate {
		if !v.res.Creatable {
			return ErrNotAllowed
		}
		v.draft = newCreateDraft(v.res)
		return nil
	}
	if !v.res.Editable {
		return ErrNotAllowed
	}
	rec, ok := v.findLocked(id)
	if !ok {
		return ErrNotFound
	}
	v.draft = newEditDraft(v.res, rec)
	return nil
}

// ApplyForm copies submitted form fields into the draft for mode and id. When the
// open draft belongs to another record, or none is open, the draft for mode and id
// replaces it first.
// POST: the open draft is the one the form was rendered for
func (v *View) ApplyForm(mode DraftMode, id string, form url.Values, files []api.File) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.draft.For(mode, id) {
		if err := v.openLocked(mode, id); err != nil {
			return err
		}
	}
	applyForm(v.draft, v.res, form, files)
	return nil
}

// Cancel discards the open draft.
func (v *View) Cancel() {
	v.mu.Lock()
	v.draft = nil
	v.mu.Unlock()
}

// Submit sends the open draft. On failure the draft stays open (with the resource's
// user-visible message for failed creates); on success it closes and the collection
// is updated per the resource's save modes.
func (v *View) Submit(ctx context.Context) error {
	v.mu.Lock()
	d := v.draft
	if d == nil {
		v.mu.Unlock()
		return ErrNoDraft
	}
	if invalid := validateDraft(d, v.res); len(invalid) > 0 {
		d.Invalid = invalid
		v.mu.Unlock()
		return ErrInvalidDraft
	}
	d.Invalid = nil
	sent := d.clone()
	v.mu.Unlock()

	body, err := encodeDraft(sent, v.res)
	if err != nil {
		return err
	}

	var resp Record
	if sent.Mode == DraftEdit {
		err = v.gw.Send(ctx, http.MethodPut, v.res.Endpoint.Item(sent.ID), body, &resp)
	} else {
		err = v.gw.Send(ctx, http.MethodPost, string(v.res.createEndpoint()), body, &resp)
	}
	if err != nil {
		zap.S().Warnw("draft_submit_failed", "resource", v.res.Name, "mode", sent.Mode, "id", sent.ID, "error", err)
		v.mu.Lock()
		if v.draft == d && sent.Mode == DraftCreate {
			d.Message = v.res.CreateFailureMessage
		}
		v.mu.Unlock()
		return err
	}

	v.mu.Lock()
	if v.draft == d {
		v.draft = nil
	}
	mode := v.res.AfterEdit
	if sent.Mode == DraftCreate {
		mode = v.res.AfterCreate
	}
	switch {
	case mode == AppendResponse && sent.Mode == DraftCreate && resp != nil:
		v.items = append(v.items, resp)
		v.total++
	case mode == MergeLocal && sent.Mode == DraftEdit:
		v.mergeLocked(sent)
	default:
		mode = Refetch
	}
	v.mu.Unlock()

	if sent.Mode == DraftCreate && v.OnCreated != nil {
		v.OnCreated(ctx, sent.Values)
	}
	if mode == Refetch {
		_ = v.Refresh(ctx)
	}
	return nil
}

func (v *View) mergeLocked(d *Draft) {
	for i, it := range v.items {
		if it.ID() != d.ID {
			continue
		}
		merged := it.Clone()
		for k, val := range d.Values {
			merged[k] = val
		}
		v.items[i] = merged
		return
	}
}

// Delete removes the record on the server and then locally, without refetching.
// Deleting an id that is no longer in the collection leaves it unchanged.
func (v *View) Delete(ctx context.Context, id string) error {
	if !v.res.Deletable {
		return ErrNotAllowed
	}
	if err := v.gw.Send(ctx, http.MethodDelete, v.res.Endpoint.Item(id), nil, nil); err != nil {
		zap.S().Warnw("delete_failed", "resource", v.res.Name, "id", id, "error", err)
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, it := range v.items {
		if it.ID() == id {
			v.items = append(v.items[:i:i], v.items[i+1:]...)
			v.total--
			break
		}
	}
	return nil
}

// Transition runs the named action against the record with id.
// PRE: the record is in the current collection
// POST: on success the response is kept when the action shows it, and the collection
// is refetched when the action asks for it
func (v *View) Transition(ctx context.Context, name, id string, in ActionInput) (*ActionResult, error) {
	act, ok := v.res.Action(name)
	if !ok {
		return nil, ErrNotAllowed
	}
	v.mu.Lock()
	rec, found := v.findLocked(id)
	v.mu.Unlock()
	if !found {
		return nil, ErrNotFound
	}
	if act.Visible != nil && !act.Visible(rec) {
		return nil, ErrNotAllowed
	}

	var (
		out any
		err error
	)
	path := act.Path(id)
	if act.Method == http.MethodGet {
		var q url.Values
		if act.Query != nil {
			q = act.Query(rec)
		}
		err = v.gw.Get(ctx, path, q, &out)
	} else {
		var body api.Body
		if act.Body != nil {
			if body, err = act.Body(rec, in); err != nil {
				return nil, err
			}
		}
		err = v.gw.Send(ctx, act.Method, path, body, &out)
	}
	if err != nil {
		zap.S().Warnw("action_failed", "resource", v.res.Name, "action", name, "id", id, "error", err)
		return nil, err
	}

	result := &ActionResult{Action: name, ID: id, Data: out}
	if act.Shows {
		v.mu.Lock()
		v.result = result
		v.mu.Unlock()
	}
	if act.Refetch {
		_ = v.Refresh(ctx)
	}
	return result, nil
}

// ClearResult hides the last shown action result.
func (v *View) ClearResult() {
	v.mu.Lock()
	v.result = nil
	v.mu.Unlock()
}

// Find returns a copy of the record with id from the current collection.
func (v *View) Find(id string) (Record, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.findLocked(id)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (v *View) findLocked(id string) (Record, bool) {
	for _, it := range v.items {
		if it.ID() == id {
			return it, true
		}
	}
	return nil, false
}

// Snapshot copies the view for rendering. Local filters are applied here.
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	items := make([]Record, 0, len(v.items))
	for _, it := range v.items {
		if v.res.FilterMode == FilterLocal && v.res.Match != nil && !v.res.Match(it, v.filters) {
			continue
		}
		items = append(items, it)
	}
	return State{
		Resource: v.res,
		Items:    items,
		Total:    v.total,
		Page:     v.page,
		Filters:  v.filters.Clone(),
		Lookups:  v.lookups,
		Draft:    v.draft.clone(),
		Notice:   v.notice,
		Result:   v.result,
		Loading:  v.inflight > 0,
		Loaded:   v.loaded,
	}
}
