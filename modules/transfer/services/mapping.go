package services

import (
	"sort"
)

// IdentifierMapping maps the ids found in a source file to the ids the store
// assigned. It lives for one import run. The first writer of a key wins.
type IdentifierMapping struct {
	ids   map[string]string
	order []string
}

func NewIdentifierMapping() *IdentifierMapping {
	return &IdentifierMapping{ids: map[string]string{}}
}

// Record stores originalID -> storeID unless originalID is blank or already
// mapped. It reports whether the entry was added.
func (m *IdentifierMapping) Record(originalID, storeID string) bool {
	if originalID == "" || storeID == "" {
		return false
	}
	if _, taken := m.ids[originalID]; taken {
		return false
	}
	m.ids[originalID] = storeID
	m.order = append(m.order, originalID)
	return true
}

func (m *IdentifierMapping) Lookup(originalID string) (string, bool) {
	if m == nil {
		return "", false
	}
	id, ok := m.ids[originalID]
	return id, ok
}

// Resolve maps id, or returns it unchanged when it is not mapped: unmapped
// ids are taken to be store ids already.
func (m *IdentifierMapping) Resolve(id string) string {
	if mapped, ok := m.Lookup(id); ok {
		return mapped
	}
	return id
}

func (m *IdentifierMapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ids)
}

// Entries returns a copy in insertion order.
func (m *IdentifierMapping) Entries() []MappingEntry {
	if m == nil {
		return nil
	}
	out := make([]MappingEntry, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, MappingEntry{OriginalID: k, StoreID: m.ids[k]})
	}
	return out
}

// Map returns a copy keyed by original id.
func (m *IdentifierMapping) Map() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.ids {
		out[k] = v
	}
	return out
}

type MappingEntry struct {
	OriginalID string `json:"originalId"`
	StoreID    string `json:"storeId"`
}

// MergeMappings combines per type tables in the given order. A key already
// present is never overwritten by a later table.
func MergeMappings(tables ...*IdentifierMapping) *IdentifierMapping {
	out := NewIdentifierMapping()
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, k := range t.order {
			out.Record(k, t.ids[k])
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
