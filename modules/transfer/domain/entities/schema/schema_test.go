package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogLoadsEveryEntityType(t *testing.T) {
	want := []EntityType{
		Capability, Application, DataObject, Interface, Person,
		Architecture, Diagram, ArchitecturePrinciple, Infrastructure, AIComponent,
	}
	require.ElementsMatch(t, want, All())
	for _, et := range want {
		s, ok := Of(et)
		require.True(t, ok, et)
		require.NotEmpty(t, s.GraphQL.Type, et)
		require.NotEmpty(t, s.GraphQL.Plural, et)
		require.True(t, s.Known(s.NameField), "%s name field %s", et, s.NameField)
	}
}

func TestFromTab(t *testing.T) {
	cases := map[string]EntityType{
		"Capabilities":            Capability,
		"business_capabilities":   Capability,
		" Applications ":          Application,
		"Data Objects":            DataObject,
		"ApplicationInterfaces":   Interface,
		"People":                  Person,
		"Architecture Principles": ArchitecturePrinciple,
		"AI Components":           AIComponent,
		"diagram":                 Diagram,
	}
	for tab, want := range cases {
		got, err := FromTab(tab)
		require.NoError(t, err, tab)
		require.Equal(t, want, got, tab)
	}
}

func TestFromTabSuggestsClosestTab(t *testing.T) {
	_, err := FromTab("Capabilites")
	require.Error(t, err)
	require.Contains(t, err.Error(), `did you mean "Capabilities"`)
}

func TestKinds(t *testing.T) {
	s := MustOf(Capability)
	require.Equal(t, KindID, s.Kind("id"))
	require.Equal(t, KindString, s.Kind("name"))
	require.Equal(t, KindDate, s.Kind("introductionDate"))
	require.Equal(t, KindNumber, s.Kind("maturityLevel"))
	require.Equal(t, KindEnum, s.Kind("status"))
	require.Equal(t, KindArray, s.Kind("tags"))
	require.Equal(t, KindRelationship, s.Kind("parents"))
	require.Equal(t, KindUnknown, s.Kind("favouriteColour"))

	rel, ok := s.Relationship("parents")
	require.True(t, ok)
	require.True(t, rel.Many)
	require.Equal(t, Capability, rel.Target)
	require.Equal(t, "BusinessCapability", rel.TargetLabel())

	company, ok := s.Relationship("company")
	require.True(t, ok)
	require.False(t, company.Many)
	require.Equal(t, "Company", company.TargetLabel())
}

func TestDiagramColumnsExcludeDocumentForTabular(t *testing.T) {
	s := MustOf(Diagram)
	require.Equal(t, KindDocument, s.Kind("diagramJson"))
	require.Contains(t, s.Columns(false), "diagramJson")
	require.NotContains(t, s.Columns(true), "diagramJson")
	require.Equal(t, "id", s.Columns(true)[0])
}

func TestParseCatalogRejectsBrokenEntries(t *testing.T) {
	_, err := parseCatalog([]byte(`
entities:
  - type: thing
    nameField: name
    mandatory: [name]
    enums:
      status: {values: [A], default: A}
`))
	require.Error(t, err)

	_, err = parseCatalog([]byte(`
entities:
  - type: thing
    nameField: name
    mandatory: [name]
    relationships:
      - {field: owner, target: nobody, rel: OWNS, direction: out}
`))
	require.Error(t, err)
}

func TestSuggest(t *testing.T) {
	require.Equal(t, "description", Suggest("descrption", []string{"name", "description"}))
	require.Equal(t, "", Suggest("zzz", []string{"name", "description"}))
}
