package crud

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"

	"eduadmin/internal/adapters/api"
)

// DraftMode distinguishes create from edit drafts.
type DraftMode uint8

const (
	DraftCreate DraftMode = iota
	DraftEdit
)

// Draft is the record being edited in the single open modal of a view.
type Draft struct {
	Mode    DraftMode
	ID      string // set in edit mode
	Values  map[string]any
	Files   map[string]api.File
	Message string   // user-visible failure text
	Invalid []string // names of fields that failed validation
}

// For reports whether d is the draft of the record identified by mode and id.
func (d *Draft) For(mode DraftMode, id string) bool {
	if d == nil || d.Mode != mode {
		return false
	}
	return mode == DraftCreate || d.ID == id
}

// ParseDraftMode reads the mode a draft form was rendered in.
func ParseDraftMode(s string) DraftMode {
	if s == "edit" {
		return DraftEdit
	}
	return DraftCreate
}

func (d *Draft) clone() *Draft {
	if d == nil {
		return nil
	}
	out := *d
	out.Values = make(map[string]any, len(d.Values))
	for k, v := range d.Values {
		out.Values[k] = v
	}
	out.Files = make(map[string]api.File, len(d.Files))
	for k, v := range d.Files {
		out.Files[k] = v
	}
	out.Invalid = append([]string(nil), d.Invalid...)
	return &out
}

// Value returns the draft value for field as display text.
func (d *Draft) Value(field string) string {
	if d == nil {
		return ""
	}
	return Stringify(d.Values[field])
}

// Has reports whether a multi-select draft value contains id.
func (d *Draft) Has(field, id string) bool {
	if d == nil {
		return false
	}
	list, _ := d.Values[field].([]any)
	for _, v := range list {
		if Stringify(v) == id {
			return true
		}
	}
	return false
}

// IsInvalid reports whether field failed validation.
func (d *Draft) IsInvalid(field string) bool {
	if d == nil {
		return false
	}
	for _, f := range d.Invalid {
		if f == field {
			return true
		}
	}
	return false
}

// draftFields returns the fields a draft of mode carries.
func draftFields(res *Resource, mode DraftMode) []Field {
	if mode == DraftCreate {
		return res.Fields
	}
	out := make([]Field, 0, len(res.Fields))
	for _, f := range res.Fields {
		if !f.CreateOnly {
			out = append(out, f)
		}
	}
	return out
}

func newCreateDraft(res *Resource) *Draft {
	d := &Draft{Mode: DraftCreate, Values: map[string]any{}, Files: map[string]api.File{}}
	for _, f := range res.Fields {
		switch {
		case f.Kind == KindFile:
		case f.Default != nil:
			d.Values[f.Name] = f.Default
		case f.Kind == KindBool:
			d.Values[f.Name] = false
		case f.Kind == KindMultiSelect || f.Kind == KindWeeklyPattern:
			d.Values[f.Name] = []any{}
		default:
			d.Values[f.Name] = ""
		}
	}
	return d
}

// newEditDraft copies the editable fields of rec. Scalars are copied verbatim so an
// unchanged draft sends back exactly what was received; embedded objects collapse to ids.
func newEditDraft(res *Resource, rec Record) *Draft {
	d := &Draft{Mode: DraftEdit, ID: rec.ID(), Values: map[string]any{}, Files: map[string]api.File{}}
	for _, f := range draftFields(res, DraftEdit) {
		if f.Kind == KindFile {
			continue
		}
		v, present := rec[f.Name]
		if !present {
			continue
		}
		switch f.Kind {
		case KindSelect:
			if m, ok := v.(map[string]any); ok {
				v = m["id"]
			}
		case KindMultiSelect:
			v = idList(v)
		}
		d.Values[f.Name] = v
	}
	return d
}

func idList(v any) []any {
	list, _ := v.([]any)
	out := make([]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m["id"])
			continue
		}
		out = append(out, e)
	}
	return out
}

// applyForm overwrites draft values from submitted form fields.
func applyForm(d *Draft, res *Resource, form url.Values, files []api.File) {
	for _, f := range draftFields(res, d.Mode) {
		switch f.Kind {
		case KindFile:
			for _, file := range files {
				if file.Field == f.Name && len(file.Content) > 0 {
					d.Files[f.Name] = file
				}
			}
		case KindBool:
			switch form.Get(f.Name) {
			case "on", "true", "1":
				d.Values[f.Name] = true
			default:
				d.Values[f.Name] = false
			}
		case KindMultiSelect:
			list := []any{}
			for _, v := range form[f.Name] {
				if v != "" {
					list = append(list, coerceScalar(v))
				}
			}
			d.Values[f.Name] = list
		case KindWeeklyPattern:
			d.Values[f.Name] = weeklyPattern(form, f.Name)
		case KindNumber, KindSelect:
			if _, sent := form[f.Name]; sent {
				d.Values[f.Name] = coerceScalar(form.Get(f.Name))
			}
		default:
			if _, sent := form[f.Name]; sent {
				d.Values[f.Name] = form.Get(f.Name)
			}
		}
	}
}

// weeklyPattern zips the repeated day/start_time/end_time inputs into slot objects.
// Rows with no day are dropped.
func weeklyPattern(form url.Values, name string) []any {
	days := form[name+".day"]
	starts := form[name+".start_time"]
	ends := form[name+".end_time"]
	out := []any{}
	for i, day := range days {
		if day == "" {
			continue
		}
		slot := map[string]any{"day": day, "start_time": "", "end_time": ""}
		if i < len(starts) {
			slot["start_time"] = starts[i]
		}
		if i < len(ends) {
			slot["end_time"] = ends[i]
		}
		out = append(out, slot)
	}
	return out
}

var validate = validator.New()

// validateDraft returns the names of fields whose values break their rules.
func validateDraft(d *Draft, res *Resource) []string {
	var invalid []string
	for _, f := range draftFields(res, d.Mode) {
		tag := f.Rule
		switch {
		case f.Kind == KindFile:
			if f.Required && d.Mode == DraftCreate {
				if _, ok := d.Files[f.Name]; !ok {
					invalid = append(invalid, f.Name)
				}
			}
			continue
		case f.Required && tag != "":
			tag = "required," + tag
		case f.Required:
			tag = "required"
		case tag != "":
			tag = "omitempty," + tag
		}
		if tag == "" {
			continue
		}
		if err := validate.Var(validatable(d.Values[f.Name]), tag); err != nil {
			invalid = append(invalid, f.Name)
		}
	}
	return invalid
}

// validatable converts decoded JSON values into types validator understands.
func validatable(v any) any {
	switch x := v.(type) {
	case json.Number:
		return x.String()
	case nil:
		return ""
	}
	return v
}

// encodeDraft builds the request body for d.
func encodeDraft(d *Draft, res *Resource) (api.Body, error) {
	values := make(map[string]any, len(d.Values)+len(res.CreateExtra))
	for _, f := range draftFields(res, d.Mode) {
		if v, ok := d.Values[f.Name]; ok {
			values[f.Name] = v
		}
	}
	if d.Mode == DraftCreate {
		for k, v := range res.CreateExtra {
			values[k] = v
		}
	}

	if res.Encoding == EncodeJSON {
		return api.JSON(values), nil
	}

	form := api.NewForm()
	for _, f := range draftFields(res, d.Mode) {
		if f.Kind == KindFile {
			if file, ok := d.Files[f.Name]; ok {
				form.AddFile(file)
			}
			continue
		}
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if err := addFormValue(form, f, v); err != nil {
			return nil, err
		}
		delete(values, f.Name)
	}
	for k, v := range values {
		form.Add(k, Stringify(v))
	}
	return form, nil
}

func addFormValue(form *api.Form, f Field, v any) error {
	switch f.Kind {
	case KindMultiSelect:
		list, _ := v.([]any)
		for _, e := range list {
			form.Add(f.Name, Stringify(e))
		}
	case KindWeeklyPattern:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.Name, err)
		}
		form.Add(f.Name, string(data))
	case KindBool:
		b, _ := v.(bool)
		form.Add(f.Name, strconv.FormatBool(b))
	default:
		form.Add(f.Name, Stringify(v))
	}
	return nil
}
