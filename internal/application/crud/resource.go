package crud

import (
	"context"
	"errors"
	"net/url"

	"eduadmin/internal/adapters/api"
)

// ListShape is how the API returns a collection. The two shapes are not interchangeable.
type ListShape uint8

const (
	// ShapeAll sends page=all and receives a bare JSON array.
	ShapeAll ListShape = iota
	// ShapePaged receives {"count": n, "results": [...]}.
	ShapePaged
)

// Encoding is how drafts are sent.
type Encoding uint8

const (
	EncodeJSON Encoding = iota
	EncodeMultipart
)

// SaveMode is what the collection does after a successful create or edit.
type SaveMode uint8

const (
	// Refetch reloads the collection with the current filters.
	Refetch SaveMode = iota
	// AppendResponse appends the object the server returned (create only).
	AppendResponse
	// MergeLocal overlays the draft values on the edited record (edit only).
	MergeLocal
)

// FilterMode says where filters are applied.
type FilterMode uint8

const (
	FilterRemote FilterMode = iota
	FilterLocal
)

// FieldKind selects input widget, form parsing and payload encoding.
type FieldKind uint8

const (
	KindText FieldKind = iota
	KindEmail
	KindPassword
	KindTextarea
	KindNumber
	KindDate
	KindTime
	KindBool
	KindSelect
	KindMultiSelect
	KindFile
	KindWeeklyPattern
)

// Field is one editable attribute of a resource.
type Field struct {
	Name       string
	Label      string
	Kind       FieldKind
	Required   bool
	Rule       string // extra validator tag, e.g. "email" or "numeric"
	Lookup     string // option source for select kinds
	Options    []Option
	Default    any
	CreateOnly bool // not copied into edit drafts and not sent on edit
}

// Column is one rendered table column and one export column.
type Column struct {
	Label string
	Value func(r Record, lk Lookups) string
}

// Filter is one filter control.
type Filter struct {
	Name    string // query parameter
	Label   string
	Kind    FieldKind
	Lookup  string
	Options []Option
}

// Lookup is a secondary collection fetched to label foreign ids and fill selects.
type Lookup struct {
	Name     string
	Endpoint api.Endpoint
	Shape    ListShape
	Label    func(Record) string
}

// ActionInput carries form values and files for an action.
type ActionInput struct {
	Values url.Values
	Files  []api.File
}

// Action is a sub-resource operation on one record.
type Action struct {
	Name    string
	Label   string
	Method  string
	Path    func(id string) string
	Query   func(r Record) url.Values
	Body    func(r Record, in ActionInput) (api.Body, error)
	Fields  []Field // input form shown before running
	Refetch bool    // reload the collection on success
	Shows   bool    // keep the response for display
	Visible func(r Record) bool
}

// NoticeError aborts a fetch with a message meant for the person using the console.
type NoticeError struct{ Message string }

func (e *NoticeError) Error() string { return e.Message }

// Resource is the full configuration of one generic view.
type Resource struct {
	Name     string
	Title    string
	Endpoint api.Endpoint
	Shape    ListShape
	Encoding Encoding

	Fields  []Field
	Columns []Column
	Filters []Filter
	Lookups []Lookup
	Actions []Action

	FilterMode FilterMode
	// Match applies local filters. Required when FilterMode is FilterLocal.
	Match func(r Record, f Filters) bool
	// Query maps filters to query parameters. Defaults to sending every non-empty filter.
	// It may return a *NoticeError to skip the fetch.
	Query func(f Filters, lk Lookups) (url.Values, error)

	Creatable bool
	Editable  bool
	Deletable bool

	CreateEndpoint       api.Endpoint   // defaults to Endpoint
	CreateExtra          map[string]any // merged into create payloads
	CreateFailureMessage string         // shown in the draft when create fails

	AfterCreate SaveMode
	AfterEdit   SaveMode
}

var (
	ErrNoDraft      = errors.New("no open draft")
	ErrNotAllowed   = errors.New("operation not offered by this resource")
	ErrNotFound     = errors.New("record not in collection")
	ErrInvalidDraft = errors.New("draft has invalid fields")
	ErrUnknownField = errors.New("unknown field")
	ErrStale        = errors.New("response superseded by a newer fetch")
)

// Gateway is the subset of the API client a view needs.
type Gateway interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Send(ctx context.Context, method, path string, body api.Body, out any) error
}

// Action returns the named action.
func (r *Resource) Action(name string) (Action, bool) {
	for _, a := range r.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

// Field returns the named field.
func (r *Resource) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (r *Resource) createEndpoint() api.Endpoint {
	if r.CreateEndpoint != "" {
		return r.CreateEndpoint
	}
	return r.Endpoint
}

// Filters is the current filter state keyed by filter name.
type Filters map[string]string

// Clone copies f, dropping empty values.
func (f Filters) Clone() Filters {
	out := Filters{}
	for k, v := range f {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Query sends every non-empty filter as a query parameter.
func (f Filters) Query() url.Values {
	q := url.Values{}
	for k, v := range f {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// FiltersFrom keeps only the declared filter keys of q.
func (r *Resource) FiltersFrom(q url.Values) Filters {
	f := Filters{}
	for _, flt := range r.Filters {
		if v := q.Get(flt.Name); v != "" {
			f[flt.Name] = v
		}
	}
	return f
}
