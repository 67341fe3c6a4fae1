package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var catalogYAML []byte

type catalog struct {
	Entities []*Schema `yaml:"entities"`

	byType map[EntityType]*Schema
	byTab  map[string]EntityType
	order  []EntityType
}

var registry = sync.OnceValue(func() *catalog {
	c, err := parseCatalog(catalogYAML)
	if err != nil {
		panic(fmt.Errorf("schema catalog: %w", err))
	}
	return c
})

func parseCatalog(b []byte) (*catalog, error) {
	c := &catalog{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	c.byType = make(map[EntityType]*Schema, len(c.Entities))
	c.byTab = map[string]EntityType{}
	for _, s := range c.Entities {
		if s.Type == "" {
			return nil, fmt.Errorf("entity without type")
		}
		if _, dup := c.byType[s.Type]; dup {
			return nil, fmt.Errorf("duplicate entity type %q", s.Type)
		}
		if err := s.index(); err != nil {
			return nil, err
		}
		c.byType[s.Type] = s
		c.order = append(c.order, s.Type)

		aliases := append([]string{string(s.Type), s.Label, s.GraphQL.Type, s.GraphQL.Plural}, s.Tabs...)
		for _, a := range aliases {
			key := tabKey(a)
			if key == "" {
				continue
			}
			if other, taken := c.byTab[key]; taken && other != s.Type {
				return nil, fmt.Errorf("tab alias %q used by %s and %s", a, other, s.Type)
			}
			c.byTab[key] = s.Type
		}
	}
	for _, s := range c.Entities {
		for _, r := range s.Relationships {
			if r.Target == "" {
				continue
			}
			if _, ok := c.byType[r.Target]; !ok {
				return nil, fmt.Errorf("%s: relationship %q targets unknown type %q", s.Type, r.Field, r.Target)
			}
		}
	}
	return c, nil
}

// Of returns the catalog entry for t.
func Of(t EntityType) (*Schema, bool) {
	s, ok := registry().byType[t]
	return s, ok
}

func MustOf(t EntityType) *Schema {
	s, ok := Of(t)
	if !ok {
		panic(fmt.Sprintf("schema: unknown entity type %q", t))
	}
	return s
}

// All lists the entity types in catalog order. Imports of every type run in
// this order.
func All() []EntityType {
	order := registry().order
	out := make([]EntityType, len(order))
	copy(out, order)
	return out
}

// Lookup resolves an entity type from its key, label, GraphQL name or any tab alias.
func Lookup(name string) (EntityType, bool) {
	t, ok := registry().byTab[tabKey(name)]
	return t, ok
}

// FromTab maps a sheet/tab name to its entity type.
func FromTab(tab string) (EntityType, error) {
	if t, ok := Lookup(tab); ok {
		return t, nil
	}
	if s := Suggest(tab, tabNames()); s != "" {
		return "", fmt.Errorf("unknown tab %q (did you mean %q?)", tab, s)
	}
	return "", fmt.Errorf("unknown tab %q", tab)
}

// Suggest returns the closest candidate to v, or "" when nothing is close.
func Suggest(v string, candidates []string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(candidates) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindNormalizedFold(v, candidates)
	if len(ranks) == 0 {
		// a longer header may still contain a known field name
		for _, c := range candidates {
			if fuzzy.MatchNormalizedFold(c, v) {
				return c
			}
		}
		return ""
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return best.Target
}

func tabNames() []string {
	out := make([]string, 0, len(registry().Entities))
	for _, s := range registry().Entities {
		out = append(out, s.TabName())
	}
	return out
}

// NormalizeHeader trims a column or tab header and brings it into NFC form.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.TrimSpace(norm.NFC.String(h))
}

func tabKey(name string) string {
	name = strings.ToLower(NormalizeHeader(name))
	var b strings.Builder
	for _, r := range name {
		if unicode.IsSpace(r) || r == '_' || r == '-' || r == '&' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
