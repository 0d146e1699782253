package projections

import (
	"context"
	"net/url"

	"eduadmin/internal/application/crud"
)

// Getter is the API gateway subset used by read models.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

// recordsOf normalises a decoded list payload. Bare arrays and {"results": [...]}
// envelopes are both accepted; anything else yields nil.
func recordsOf(v any) []crud.Record {
	switch t := v.(type) {
	case []any:
		out := make([]crud.Record, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, crud.Record(m))
			}
		}
		return out
	case map[string]any:
		if results, ok := t["results"]; ok {
			return recordsOf(results)
		}
	}
	return nil
}
