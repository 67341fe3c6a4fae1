package record

import (
	"strings"
)

// ExtractIDs returns the identifiers referenced by a relationship value in any
// of the shapes files carry them in: a comma-joined string, an array of
// strings, an array of {id} objects, or a single {id} object. Blank and
// repeated ids are dropped; order is kept.
func ExtractIDs(v any) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	var walk func(v any)
	walk = func(v any) {
		switch x := v.(type) {
		case nil:
		case string:
			for _, part := range strings.Split(x, ",") {
				add(part)
			}
		case []string:
			for _, s := range x {
				walk(s)
			}
		case []any:
			for _, item := range x {
				walk(item)
			}
		case []map[string]any:
			for _, item := range x {
				walk(item)
			}
		case map[string]any:
			if id, ok := x["id"]; ok {
				add(Stringify(id))
			}
		default:
			add(Stringify(x))
		}
	}
	walk(v)
	return out
}
