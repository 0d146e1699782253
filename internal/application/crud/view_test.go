package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"sync"
	"testing"

	"eduadmin/internal/adapters/api"
)

// call records one gateway invocation.
type call struct {
	method string
	path   string
	query  url.Values
	body   []byte
	ctype  string
}

// fakeGateway is a scripted Gateway.
// PRE: respond returns a JSON document or an error for every call the test makes
// POST: every call is appended to calls
type fakeGateway struct {
	mu      sync.Mutex
	calls   []call
	respond func(c call) (string, error)
}

func (g *fakeGateway) Get(ctx context.Context, path string, query url.Values, out any) error {
	return g.do(call{method: http.MethodGet, path: path, query: query}, out)
}

func (g *fakeGateway) Send(ctx context.Context, method, path string, body api.Body, out any) error {
	c := call{method: method, path: path}
	if body != nil {
		data, ct, err := api.Encode(body)
		if err != nil {
			return err
		}
		c.body, c.ctype = data, ct
	}
	return g.do(c, out)
}

func (g *fakeGateway) do(c call, out any) error {
	g.mu.Lock()
	g.calls = append(g.calls, c)
	respond := g.respond
	g.mu.Unlock()
	doc, err := respond(c)
	if err != nil {
		return err
	}
	if out == nil || doc == "" {
		return nil
	}
	return api.Decode([]byte(doc), out)
}

func (g *fakeGateway) count(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

func (g *fakeGateway) last(method string) call {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.calls) - 1; i >= 0; i-- {
		if g.calls[i].method == method {
			return g.calls[i]
		}
	}
	return call{}
}

func scheduleResource() *Resource {
	return &Resource{
		Name:     "schedules",
		Endpoint: api.Schedules,
		Shape:    ShapeAll,
		Encoding: EncodeJSON,
		Fields: []Field{
			{Name: "center", Kind: KindSelect, Required: true},
			{Name: "section", Kind: KindSelect, Required: true},
			{Name: "date", Kind: KindDate, Required: true},
			{Name: "start_time", Kind: KindTime, Required: true},
			{Name: "end_time", Kind: KindTime, Required: true},
			{Name: "capacity", Kind: KindNumber, Default: json.Number("0")},
		},
		Filters:   []Filter{{Name: "date"}, {Name: "center"}, {Name: "section"}},
		Creatable: true, Editable: true, Deletable: true,
		Actions: []Action{{
			Name: "start-meeting", Method: http.MethodPost, Refetch: true,
			Path: func(id string) string { return api.Schedules.Item(id, "start") },
		}},
	}
}

const twoSchedules = `[
 {"id":1,"center":3,"section":4,"date":"2025-01-10","start_time":"10:00","end_time":"11:00","capacity":12},
 {"id":2,"center":3,"section":5,"date":"2025-01-11","start_time":"12:00","end_time":"13:00","capacity":8}
]`

func TestFetchList_AllShapeSendsPageAll(t *testing.T) {
	gw := &fakeGateway{respond: func(c call) (string, error) { return twoSchedules, nil }}
	v := NewView(scheduleResource(), gw)

	if err := v.FetchList(context.Background(), Filters{"date": "2025-01-10", "center": ""}, 0); err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	q := gw.last(http.MethodGet).query
	if q.Get("page") != "all" || q.Get("date") != "2025-01-10" {
		t.Errorf("query = %v", q)
	}
	if _, sent := q["center"]; sent {
		t.Error("empty filter was sent")
	}
	if got := len(v.Snapshot().Items); got != 2 {
		t.Errorf("items = %d, want 2", got)
	}
}

func TestFetchList_PagedShapeReadsResults(t *testing.T) {
	res := scheduleResource()
	res.Shape = ShapePaged
	gw := &fakeGateway{respond: func(c call) (string, error) {
		return `{"count":31,"results":[{"id":9}]}`, nil
	}}
	v := NewView(res, gw)

	if err := v.FetchList(context.Background(), nil, 2); err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	st := v.Snapshot()
	if len(st.Items) != 1 || st.Total != 31 {
		t.Errorf("items = %d total = %d", len(st.Items), st.Total)
	}
	if gw.last(http.MethodGet).query.Get("page") != "2" {
		t.Error("page number not sent")
	}
}

func TestFetchList_ShapesAreNotInterchangeable(t *testing.T) {
	res := scheduleResource()
	res.Shape = ShapePaged
	gw := &fakeGateway{respond: func(c call) (string, error) { return twoSchedules, nil }}
	v := NewView(res, gw)

	if err := v.FetchList(context.Background(), nil, 0); err == nil {
		t.Fatal("bare array accepted for a paginated resource")
	}
	if len(v.Snapshot().Items) != 0 {
		t.Error("collection changed on a shape mismatch")
	}
}

func TestFetchList_FailureKeepsCollection(t *testing.T) {
	fail := false
	gw := &fakeGateway{respond: func(c call) (string, error) {
		if fail {
			return "", &api.Error{Status: 500}
		}
		return twoSchedules, nil
	}}
	v := NewView(scheduleResource(), gw)
	_ = v.FetchList(context.Background(), nil, 0)

	fail = true
	if err := v.FetchList(context.Background(), Filters{"date": "2030-01-01"}, 0); err == nil {
		t.Fatal("want error")
	}
	if got := len(v.Snapshot().Items); got != 2 {
		t.Errorf("items = %d, want previous 2", got)
	}
}

func TestFetchList_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{respond: func(c call) (string, error) {
		if c.query.Get("date") == "old" {
			<-release
			return `[{"id":100}]`, nil
		}
		return `[{"id":200}]`, nil
	}}
	v := NewView(scheduleResource(), gw)

	done := make(chan error)
	go func() { done <- v.FetchList(context.Background(), Filters{"date": "old"}, 0) }()
	for gw.count(http.MethodGet) == 0 {
		// wait for the slow fetch to be in flight
	}
	if err := v.FetchList(context.Background(), Filters{"date": "new"}, 0); err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	close(release)
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Errorf("slow fetch err = %v, want ErrStale", err)
	}
	st := v.Snapshot()
	if len(st.Items) != 1 || st.Items[0].ID() != "200" {
		t.Errorf("items = %v, want only the newer response", st.Items)
	}
	if st.Filters["date"] != "new" {
		t.Errorf("filters = %v", st.Filters)
	}
}

func TestDelete_RemovesLocallyWithoutRefetch(t *testing.T) {
	gw := &fakeGateway{respond: func(c call) (string, error) {
		if c.method == http.MethodDelete {
			return "", nil
		}
		return twoSchedules, nil
	}}
	v := NewView(scheduleResource(), gw)
	_ = v.FetchList(context.Background(), nil, 0)

	if err := v.Delete(context.Background(), "1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gw.last(http.MethodDelete).path != "api/schedules/1/" {
		t.Errorf("delete path = %q", gw.last(http.MethodDelete).path)
	}
	if gw.count(http.MethodGet) != 1 {
		t.Errorf("GETs = %d, delete must not refetch", gw.count(http.MethodGet))
	}
	st := v.Snapshot()
	if len(st.Items) != 1 || st.Items[0].ID() != "2" {
		t.Errorf("items = %v, want only id 2", st.Items)
	}

	// A second delete of the same id succeeds upstream but leaves the collection as is.
	if err := v.Delete(context.Background(), "1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := len(v.Snapshot().Items); got != 1 {
		t.Errorf("items = %d, want 1", got)
	}
}

func TestDelete_FailureKeepsItem(t *testing.T) {
	gw := &fakeGateway{respond: func(c call) (string, error) {
		if c.method == http.MethodDelete {
			return "", &api.Error{Status: 403}
		}
		return twoSchedules, nil
	}}
	v := NewView(scheduleResource(), gw)
	_ = v.FetchList(context.Background(), nil, 0)

	if err := v.Delete(context.Background(), "1"); !api.IsAuth(err) {
		t.Fatalf("err = %v, want auth failure", err)
	}
	if got := len(v.Snapshot().Items); got != 2 {
		t.Errorf("items = %d, want 2", got)
	}
}

func TestSubmit_UnchangedEditRoundTrips(t *testing.T) {
	gw := &fakeGateway{respond: func(c call) (string, error) {
		if c.method == http.MethodPut {
			return `{}`, nil
		}
		return twoSchedules, nil
	}}
	v := NewView(scheduleResource(), gw)
	_ = v.FetchList(context.Background(), nil, 0)
	original, _ := v.Find("1")

	if err := v.OpenEdit("1"); err != nil {
		t.Fatalf("OpenEdit: %v", err)
	}
	if err := v.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	put := gw.last(http.MethodPut)
	if put.path != "api/schedules/1/" {
		t.Errorf("PUT path = %q", put.path)
	}
	var payload map[string]any
	if err := api.Decode(put.body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	delete(original, "id")
	if !reflect.DeepEqual(map[string]any(original), payload) {
		t.Errorf("payload = %v\nwant %v", payload, original)
	}
	if v.Snapshot().Draft != nil {
		t.Error("draft still open after success")
	}
	if gw.count(http.MethodGet) != 2 {
		t.Errorf("GETs = %d, want refetch after edit", gw.count(http.MethodGet))
	}
}

func TestSubmit_CreateFailureKeepsDraftWithMessage(t *testing.T) {
	res := scheduleResource()
	res.CreateFailureMessage = "create failed"
	gw := &fakeGateway{respond: func(c call) (string, error) {
		if c.method == http.MethodPost {
			return "", &api.Error{Status: 400, Body: []byte(`{"date":["bad"]}`)}
		}
		return `[]`, nil
	}}
	v := NewView(res, gw)
	_ = v.OpenCreate()
	_ = v.ApplyForm(DraftCreate, "", url.Values{"center": {"3"}, "section": {"4"}, "date": {"2025-01-10"},
		"start_time": {"10:00"}, "end_time": {"11:00"}, "capacity": {"5"}}, nil)

	if err := v.Submit(context.Background()); !api.IsValidation(err) {
		t.Fatalf("err = %v, want validation failure", err)
	}
	d := v.Snapshot().Draft
	if d == nil {
		t.Fatal("draft closed after failure")
	}
	if d.Message != "create failed" {
		t.Errorf("Message = %q", d.Message)
	}
	if d.Value("capacity") != "5" {
		t.Errorf("draft lost values: capacity = %q", d.Value("capacity"))
	}
}

func TestSubmit_RequiredFieldsBlockSend(t *testing.T) {
	gw := &fakeGateway{respond: func(c call) (string, error) { return `{}`, nil }}
	v := NewView(scheduleResource(), gw)
	_ = v.OpenCreate()

	if err := v.Submit(context.Background()); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("err = %v, want ErrInvalidDraft", err)
	}
	if len(gw.calls) != 0 {
		t.Errorf("calls = %d, invalid draft must not be sent", len(gw.calls))
	}
	if !v.Snapshot().Draft.IsInvalid("date") {
		t.Error("date not flagged")
	}
}

func TestSubmit_AppendResponseAndMergeLocal(t *testing.T) {
	res := scheduleResource()
	res.AfterCreate = AppendResponse
	res.AfterEdit = MergeLocal
	gw := &fakeGateway{respond: func(c call) (string, error) {
		switch c.method {
		case http.MethodPost:
			return `{"id":3,"center":3,"section":4,"date":"2025-02-01","start_time":"09:00","end_time":"10:00","capacity":1}`, nil
		case http.MethodPut:
			return `{}`, nil
		}
		return twoSchedules, nil
	}}
	v := NewView(res, gw)
	_ = v.FetchList(context.Background(), nil, 0)

	_ = v.OpenCreate()
	_ = v.ApplyForm(DraftCreate, "", url.Values{"center": {"3"}, "section": {"4"}, "date": {"2025-02-01"},
		"start_time": {"09:00"}, "end_time": {"10:00"}}, nil)
	if err := v.Submit(context.Background()); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = v.OpenEdit("2")
	_ = v.ApplyForm(DraftEdit, "2", url.Values{"center": {"3"}, "section": {"5"}, "date": {"2025-01-11"},
		"start_time": {"12:30"}, "end_time": {"13:00"}, "capacity": {"8"}}, nil)
	if err := v.Submit(context.Background()); err != nil {
		t.Fatalf("edit: %v", err)
	}

	if gw.count(http.MethodGet) != 1 {
		t.Errorf("GETs = %d, append and merge must not refetch", gw.count(http.MethodGet))
	}
	st := v.Snapshot()
	if len(st.Items) != 3 || st.Items[2].ID() != "3" {
		t.Fatalf("items = %v, want server object appended", st.Items)
	}
	if st.Items[1].String("start_time") != "12:30" {
		t.Errorf("merged start_time = %q", st.Items[1].String("start_time"))
	}
}

func TestOpenDraft_SingleModal(t *testing.T) {
	gw := &fakeGateway{respond: func(c call) (string, error) { return twoSchedules, nil }}
	v := NewView(scheduleResource(), gw)
	_ = v.FetchList(context.Background(), nil, 0)

	_ = v.OpenEdit("1")
	_ = v.OpenCreate()
	d := v.Snapshot().Draft
	if d == nil || d.Mode != DraftCreate {
		t.Fatalf("draft = %+v, want the create draft to replace the edit draft", d)
	}
	if d.Value("capacity") != "0" {
		t.Errorf("capacity default = %q, want 0", d.Value("capacity"))
	}
	v.Cancel()
	if v.Snapshot().Draft != nil {
		t.Error("Cancel left a draft open")
	}
	if err := v.OpenEdit("404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTransition_PostsAndRefetches(t *testing.T) {
	gw := &fakeGateway{respond: func(c call) (string, error) {
		if c.method == http.MethodPost {
			return "", nil
		}
		return twoSchedules, nil
	}}
	v := NewView(scheduleResource(), gw)
	_ = v.FetchList(context.Background(), nil, 0)

	if _, err := v.Transition(context.Background(), "start-meeting", "2", ActionInput{}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if gw.last(http.MethodPost).path != "api/schedules/2/start/" {
		t.Errorf("path = %q", gw.last(http.MethodPost).path)
	}
	if gw.count(http.MethodGet) != 2 {
		t.Errorf("GETs = %d, want refetch", gw.count(http.MethodGet))
	}
	if _, err := v.Transition(context.Background(), "explode", "2", ActionInput{}); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("unknown action err = %v", err)
	}
}

func TestSubmit_MultipartRepeatsIDs(t *testing.T) {
	res := &Resource{
		Name: "centers", Endpoint: api.Centers, Shape: ShapeAll, Encoding: EncodeMultipart,
		Fields: []Field{
			{Name: "name", Kind: KindText, Required: true},
			{Name: "image", Kind: KindFile},
			{Name: "users", Kind: KindMultiSelect},
		},
		Creatable: true,
	}
	gw := &fakeGateway{respond: func(c call) (string, error) {
		if c.method == http.MethodPost {
			return `{"id":1}`, nil
		}
		return `[]`, nil
	}}
	v := NewView(res, gw)
	_ = v.OpenCreate()
	_ = v.ApplyForm(DraftCreate, "", url.Values{"name": {"North"}, "users": {"3", "5"}},
		[]api.File{{Field: "image", Filename: "n.png", Content: []byte("img")}})
	if err := v.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	post := gw.last(http.MethodPost)
	_, params, err := mime.ParseMediaType(post.ctype)
	if err != nil {
		t.Fatalf("content type %q: %v", post.ctype, err)
	}
	form, err := multipart.NewReader(bytes.NewReader(post.body), params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	if !reflect.DeepEqual(form.Value["users"], []string{"3", "5"}) {
		t.Errorf("users = %v", form.Value["users"])
	}
	if len(form.File["image"]) != 1 {
		t.Error("image part missing")
	}
}

func TestSnapshot_LocalFilters(t *testing.T) {
	res := scheduleResource()
	res.FilterMode = FilterLocal
	res.Match = func(r Record, f Filters) bool {
		return f["section"] == "" || r.String("section") == f["section"]
	}
	gw := &fakeGateway{respond: func(c call) (string, error) { return twoSchedules, nil }}
	v := NewView(res, gw)
	_ = v.FetchList(context.Background(), nil, 0)

	v.SetFilters(Filters{"section": "5"})
	st := v.Snapshot()
	if len(st.Items) != 1 || st.Items[0].ID() != "2" {
		t.Errorf("items = %v", st.Items)
	}
	if gw.count(http.MethodGet) != 1 {
		t.Error("local filtering refetched")
	}
	if _, sent := gw.last(http.MethodGet).query["section"]; sent {
		t.Error("local filter sent to the server")
	}
}

func TestQueryNotice_SkipsFetch(t *testing.T) {
	res := scheduleResource()
	res.Query = func(f Filters, lk Lookups) (url.Values, error) {
		return nil, &NoticeError{Message: "no such user"}
	}
	gw := &fakeGateway{respond: func(c call) (string, error) { return twoSchedules, nil }}
	v := NewView(res, gw)

	err := v.FetchList(context.Background(), Filters{"iin": "1"}, 0)
	var notice *NoticeError
	if !errors.As(err, &notice) {
		t.Fatalf("err = %v, want NoticeError", err)
	}
	if v.Snapshot().Notice != "no such user" {
		t.Errorf("Notice = %q", v.Snapshot().Notice)
	}
	if len(gw.calls) != 0 {
		t.Error("fetch ran despite notice")
	}
}

func TestApplyForm_TargetsTheRecordTheFormWasOpenedFor(t *testing.T) {
	gw := &fakeGateway{respond: func(c call) (string, error) {
		switch c.method {
		case http.MethodPut:
			return `{}`, nil
		case http.MethodPost:
			return `{"id":3}`, nil
		}
		return twoSchedules, nil
	}}
	v := NewView(scheduleResource(), gw)
	_ = v.FetchList(context.Background(), nil, 0)
	edit1 := url.Values{"center": {"3"}, "section": {"4"}, "date": {"2025-01-10"},
		"start_time": {"09:00"}, "end_time": {"10:00"}}

	// Another form opened the second record in the meantime.
	_ = v.OpenEdit("2")
	if err := v.ApplyForm(DraftEdit, "1", edit1, nil); err != nil {
		t.Fatalf("ApplyForm: %v", err)
	}
	if err := v.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if put := gw.last(http.MethodPut); put.path != "api/schedules/1/" {
		t.Errorf("PUT path = %q, want api/schedules/1/", put.path)
	}
	if gw.count(http.MethodPut) != 1 {
		t.Errorf("PUTs = %d, want 1", gw.count(http.MethodPut))
	}

	_ = v.OpenEdit("2")
	if err := v.ApplyForm(DraftCreate, "", edit1, nil); err != nil {
		t.Fatalf("ApplyForm create: %v", err)
	}
	if err := v.Submit(context.Background()); err != nil {
		t.Fatalf("Submit create: %v", err)
	}
	if gw.count(http.MethodPost) != 1 || gw.count(http.MethodPut) != 1 {
		t.Errorf("POSTs = %d PUTs = %d, want a create and no second edit", gw.count(http.MethodPost), gw.count(http.MethodPut))
	}

	if err := v.ApplyForm(DraftEdit, "99", edit1, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown record err = %v, want ErrNotFound", err)
	}
}

func TestSubmit_MultipartUnchangedEditKeepsWhitespace(t *testing.T) {
	res := &Resource{
		Name: "centers", Endpoint: api.Centers, Shape: ShapeAll, Encoding: EncodeMultipart,
		Fields: []Field{
			{Name: "name", Kind: KindText, Required: true},
			{Name: "description", Kind: KindTextarea},
		},
		Editable: true,
	}
	gw := &fakeGateway{respond: func(c call) (string, error) {
		if c.method == http.MethodPut {
			return `{}`, nil
		}
		return `[{"id":1,"name":" North ","description":"line one\n"}]`, nil
	}}
	v := NewView(res, gw)
	_ = v.FetchList(context.Background(), nil, 0)
	_ = v.OpenEdit("1")
	if err := v.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	put := gw.last(http.MethodPut)
	_, params, err := mime.ParseMediaType(put.ctype)
	if err != nil {
		t.Fatalf("content type %q: %v", put.ctype, err)
	}
	form, err := multipart.NewReader(bytes.NewReader(put.body), params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	if got := form.Value["name"]; len(got) != 1 || got[0] != " North " {
		t.Errorf("name = %q", got)
	}
	if got := form.Value["description"]; len(got) != 1 || got[0] != "line one\n" {
		t.Errorf("description = %q", got)
	}
}
