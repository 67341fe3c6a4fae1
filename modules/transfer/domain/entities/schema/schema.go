// Package schema holds the field catalog of every entity type the transfer
// engine knows about. The catalog is configuration, compiled in from schema.yaml.
package schema

import (
	"fmt"
	"strings"
)

type EntityType string

const (
	Capability            EntityType = "capability"
	Application           EntityType = "application"
	DataObject            EntityType = "dataObject"
	Interface             EntityType = "interface"
	Person                EntityType = "person"
	Architecture          EntityType = "architecture"
	Diagram               EntityType = "diagram"
	ArchitecturePrinciple EntityType = "architecturePrinciple"
	Infrastructure        EntityType = "infrastructure"
	AIComponent           EntityType = "aiComponent"
)

const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// NameRulePerson lets a person be named by firstName, lastName, a synthesized
// name column or, as a last resort, the local part of the email address.
const NameRulePerson = "person"

type Enum struct {
	Values  []string `yaml:"values"`
	Default string   `yaml:"default"`
}

func (e Enum) Contains(v string) bool {
	for _, m := range e.Values {
		if m == v {
			return true
		}
	}
	return false
}

type Relationship struct {
	Field     string     `yaml:"field"`
	Target    EntityType `yaml:"target"`
	Label     string     `yaml:"label"`
	Rel       string     `yaml:"rel"`
	Direction string     `yaml:"direction"`
	Many      bool       `yaml:"many"`
}

type GraphQLNames struct {
	Type   string `yaml:"type"`
	Plural string `yaml:"plural"`
}

type Schema struct {
	Type           EntityType      `yaml:"type"`
	Label          string          `yaml:"label"`
	Tabs           []string        `yaml:"tabs"`
	GraphQL        GraphQLNames    `yaml:"graphql"`
	NameField      string          `yaml:"nameField"`
	NameRule       string          `yaml:"nameRule"`
	Mandatory      []string        `yaml:"mandatory"`
	Optional       []string        `yaml:"optional"`
	Dates          []string        `yaml:"dates"`
	Numbers        []string        `yaml:"numbers"`
	Booleans       []string        `yaml:"booleans"`
	Arrays         []string        `yaml:"arrays"`
	Emails         []string        `yaml:"emails"`
	URLs           []string        `yaml:"urls"`
	Enums          map[string]Enum `yaml:"enums"`
	Relationships  []Relationship  `yaml:"relationships"`
	Document       string          `yaml:"document"`
	TabularExclude []string        `yaml:"tabularExclude"`

	kinds map[string]FieldKind
	rels  map[string]int
}

type FieldKind int

const (
	KindUnknown FieldKind = iota
	KindString
	KindDate
	KindNumber
	KindBoolean
	KindArray
	KindEnum
	KindDocument
	KindRelationship
	KindID
)

// IDField carries the identifier of a record as it appears in a file.
const IDField = "id"

func (s *Schema) index() error {
	s.kinds = map[string]FieldKind{IDField: KindID}
	s.rels = map[string]int{}
	for _, f := range s.Mandatory {
		s.kinds[f] = KindString
	}
	for _, f := range s.Optional {
		s.kinds[f] = KindString
	}
	mark := func(fields []string, k FieldKind) error {
		for _, f := range fields {
			if _, ok := s.kinds[f]; !ok {
				return fmt.Errorf("%s: field %q is typed but not declared", s.Type, f)
			}
			s.kinds[f] = k
		}
		return nil
	}
	if err := mark(s.Dates, KindDate); err != nil {
		return err
	}
	if err := mark(s.Numbers, KindNumber); err != nil {
		return err
	}
	if err := mark(s.Booleans, KindBoolean); err != nil {
		return err
	}
	if err := mark(s.Arrays, KindArray); err != nil {
		return err
	}
	for f, e := range s.Enums {
		if _, ok := s.kinds[f]; !ok {
			return fmt.Errorf("%s: enum %q is not declared", s.Type, f)
		}
		if !e.Contains(e.Default) {
			return fmt.Errorf("%s: enum %q default %q is not a member", s.Type, f, e.Default)
		}
		s.kinds[f] = KindEnum
	}
	if s.Document != "" {
		if err := mark([]string{s.Document}, KindDocument); err != nil {
			return err
		}
	}
	for i, r := range s.Relationships {
		if _, ok := s.kinds[r.Field]; ok {
			return fmt.Errorf("%s: relationship %q clashes with a scalar field", s.Type, r.Field)
		}
		if r.Direction != DirectionOut && r.Direction != DirectionIn {
			return fmt.Errorf("%s: relationship %q has invalid direction %q", s.Type, r.Field, r.Direction)
		}
		if r.Target == "" && r.Label == "" {
			return fmt.Errorf("%s: relationship %q needs a target or a label", s.Type, r.Field)
		}
		s.kinds[r.Field] = KindRelationship
		s.rels[r.Field] = i
	}
	if s.NameField == "" {
		return fmt.Errorf("%s: nameField is required", s.Type)
	}
	return nil
}

// Kind reports how a field is typed; KindUnknown means the column is unmapped.
func (s *Schema) Kind(field string) FieldKind {
	return s.kinds[field]
}

func (s *Schema) Known(field string) bool {
	return s.kinds[field] != KindUnknown
}

func (s *Schema) IsMandatory(field string) bool {
	for _, f := range s.Mandatory {
		if f == field {
			return true
		}
	}
	return false
}

func (s *Schema) Relationship(field string) (Relationship, bool) {
	i, ok := s.rels[field]
	if !ok {
		return Relationship{}, false
	}
	return s.Relationships[i], true
}

// OptionalFields lists every known non-mandatory column, relationships included.
func (s *Schema) OptionalFields() []string {
	out := make([]string, 0, len(s.Optional)+len(s.Relationships)+1)
	out = append(out, IDField)
	out = append(out, s.Optional...)
	for _, r := range s.Relationships {
		out = append(out, r.Field)
	}
	return out
}

// Columns is the canonical column order used when writing files.
func (s *Schema) Columns(tabular bool) []string {
	cols := make([]string, 0, len(s.kinds))
	cols = append(cols, IDField)
	cols = append(cols, s.Mandatory...)
	cols = append(cols, s.Optional...)
	for _, r := range s.Relationships {
		cols = append(cols, r.Field)
	}
	if !tabular || len(s.TabularExclude) == 0 {
		return cols
	}
	out := cols[:0]
	for _, c := range cols {
		if !contains(s.TabularExclude, c) {
			out = append(out, c)
		}
	}
	return out
}

// TargetLabel is the node label on the far side of a relationship.
func (r Relationship) TargetLabel() string {
	if r.Label != "" {
		return r.Label
	}
	if s, ok := Of(r.Target); ok {
		return s.GraphQL.Type
	}
	return ""
}

// TabName is the tab/sheet name used when exporting this entity type.
func (s *Schema) TabName() string {
	if len(s.Tabs) > 0 {
		return s.Tabs[0]
	}
	return string(s.Type)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
