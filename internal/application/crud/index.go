package crud

import "sort"

// Option is one choice in a select or filter.
type Option struct {
	Value string
	Label string
}

// Index resolves foreign ids to records and labels. It is built once per fetch and
// never mutated afterwards.
type Index struct {
	order []string
	byID  map[string]Record
	label func(Record) string
}

// NewIndex indexes items by id. Items without an id are skipped.
// PRE: label is non-nil
// POST: Get and Label run in O(1)
func NewIndex(items []Record, label func(Record) string) *Index {
	ix := &Index{byID: make(map[string]Record, len(items)), label: label}
	for _, it := range items {
		id := it.ID()
		if id == "" {
			continue
		}
		if _, dup := ix.byID[id]; !dup {
			ix.order = append(ix.order, id)
		}
		ix.byID[id] = it
	}
	return ix
}

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.order)
}

// Get returns the record with id.
func (ix *Index) Get(id string) (Record, bool) {
	if ix == nil {
		return nil, false
	}
	r, ok := ix.byID[id]
	return r, ok
}

// Label returns the display label for id, or "N/A" when unknown.
func (ix *Index) Label(id string) string {
	if r, ok := ix.Get(id); ok {
		return ix.label(r)
	}
	return "N/A"
}

// LabelOf labels either an embedded object or a bare id.
func (ix *Index) LabelOf(v any) string {
	if m, ok := v.(map[string]any); ok && ix != nil {
		return ix.label(Record(m))
	}
	return ix.Label(IDOf(v))
}

// Find returns the first record, in fetch order, satisfying pred.
func (ix *Index) Find(pred func(Record) bool) (Record, bool) {
	if ix == nil {
		return nil, false
	}
	for _, id := range ix.order {
		if r := ix.byID[id]; pred(r) {
			return r, true
		}
	}
	return nil, false
}

// Options lists every record as a select option sorted by label.
func (ix *Index) Options() []Option {
	if ix == nil {
		return nil
	}
	out := make([]Option, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, Option{Value: id, Label: ix.label(ix.byID[id])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Lookups holds one index per lookup name.
type Lookups map[string]*Index

// Label resolves v through the named lookup.
func (l Lookups) Label(name string, v any) string {
	return l[name].LabelOf(v)
}
