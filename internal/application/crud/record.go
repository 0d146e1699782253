package crud

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is one server object exactly as the API returned it. Numbers are json.Number.
type Record map[string]any

// ID returns the record id as a string, or "" when absent.
func (r Record) ID() string { return Stringify(r["id"]) }

// String returns the field as display text.
func (r Record) String(key string) string { return Stringify(r[key]) }

// Bool reports whether the field holds JSON true.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Nested returns an embedded object, or nil when the field holds an id or nothing.
func (r Record) Nested(key string) Record {
	switch v := r[key].(type) {
	case map[string]any:
		return Record(v)
	case Record:
		return v
	}
	return nil
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Stringify renders a decoded JSON value as text. Embedded objects render as their id.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		return Stringify(x["id"])
	case Record:
		return x.ID()
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, Stringify(e))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

// IDOf extracts the id from either a bare id or an embedded object.
func IDOf(v any) string { return Stringify(v) }

// coerceScalar turns form text into the JSON value the API expects: integers become
// json.Number, everything else stays a string.
func coerceScalar(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return json.Number(s)
	}
	return s
}
