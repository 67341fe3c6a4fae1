package formats

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/go-faster/errors"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

// envelopeKey holds the tabs when an export wraps them with metadata.
const envelopeKey = "data"

// ParseJSON accepts an array of records, an object of tab name -> records,
// or such an object wrapped under "data". Numbers are kept as json.Number.
func ParseJSON(r io.Reader) (*record.File, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "decode json")
	}
	out := &record.File{Format: record.FormatJSON}
	if err := addJSONTabs(out, v, true); err != nil {
		return nil, err
	}
	return out, nil
}

func addJSONTabs(out *record.File, v any, top bool) error {
	switch x := v.(type) {
	case []any:
		tab, err := jsonTab("", x)
		if err != nil {
			return err
		}
		out.Tabs = append(out.Tabs, tab)
		return nil
	case map[string]any:
		if inner, ok := x[envelopeKey]; ok && top {
			switch inner.(type) {
			case []any, map[string]any:
				return addJSONTabs(out, inner, false)
			}
		}
		for _, key := range tabOrder(x) {
			items, ok := x[key].([]any)
			if !ok {
				continue
			}
			tab, err := jsonTab(schema.NormalizeHeader(key), items)
			if err != nil {
				return err
			}
			out.Tabs = append(out.Tabs, tab)
		}
		if len(out.Tabs) == 0 {
			return errors.New("json object holds no record arrays")
		}
		return nil
	default:
		return errors.New("json must be an array of records or an object of tabs")
	}
}

func jsonTab(name string, items []any) (record.Tab, error) {
	tab := record.Tab{Name: name, Records: make([]record.RawRecord, 0, len(items))}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return tab, errors.Errorf("tab %q: item %d is not an object", name, i+1)
		}
		rec := make(record.RawRecord, len(obj))
		for k, v := range obj {
			rec[schema.NormalizeHeader(k)] = v
		}
		tab.Records = append(tab.Records, rec)
	}
	return tab, nil
}

// tabOrder puts keys naming an entity type first, in catalog order.
func tabOrder(m map[string]any) []string {
	rank := map[schema.EntityType]int{}
	for i, t := range schema.All() {
		rank[t] = i
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	pos := func(k string) int {
		if t, ok := schema.Lookup(k); ok {
			return rank[t]
		}
		return len(rank)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		pi, pj := pos(keys[i]), pos(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// WriteJSON writes an object of tab name -> records.
func WriteJSON(w io.Writer, f *record.File) error {
	doc := make(map[string][]record.RawRecord, len(f.Tabs))
	for _, t := range f.Tabs {
		recs := t.Records
		if recs == nil {
			recs = []record.RawRecord{}
		}
		doc[t.Name] = recs
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode json")
	}
	return nil
}
