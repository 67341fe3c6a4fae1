package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

func mappingOf(pairs ...string) *IdentifierMapping {
	m := NewIdentifierMapping()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Record(pairs[i], pairs[i+1])
	}
	return m
}

func TestBuildRelationshipPayloadShapes(t *testing.T) {
	m := mappingOf("c1", "idX", "p1", "idP")
	r := NewResolver()

	tabular, err := r.BuildRelationshipPayload(schema.Capability, record.RawRecord{
		"id": "c2", "name": "Checkout", "parents": "c1, existing-9", "owners": "p1", "children": "",
	}, m)
	require.NoError(t, err)
	jsonShaped, err := r.BuildRelationshipPayload(schema.Capability, record.RawRecord{
		"id": "c2", "name": "Checkout",
		"parents": []any{map[string]any{"id": "c1", "name": "Payments"}, "existing-9"},
		"owners":  []any{map[string]any{"id": "p1"}},
	}, m)
	require.NoError(t, err)

	want := domain.UpdateInput{Connect: map[string]domain.Connection{
		"parents": {IDs: []string{"idX", "existing-9"}, Many: true},
		"owners":  {IDs: []string{"idP"}, Many: true},
	}}
	require.Equal(t, want, tabular)
	require.Equal(t, want, jsonShaped)
	require.Nil(t, tabular.Set)
}

func TestBuildRelationshipPayloadToOne(t *testing.T) {
	in, err := NewResolver().BuildRelationshipPayload(schema.Infrastructure, record.RawRecord{
		"parentInfrastructure": map[string]any{"id": "i1"},
		"company":              "acme,other",
	}, mappingOf("i1", "infra-1"))
	require.NoError(t, err)
	require.Equal(t, domain.Connection{IDs: []string{"infra-1"}}, in.Connect["parentInfrastructure"])
	require.Equal(t, domain.Connection{IDs: []string{"acme"}}, in.Connect["company"])
}

func TestBuildRelationshipPayloadEmptyRow(t *testing.T) {
	in, err := NewResolver().BuildRelationshipPayload(schema.Application, record.RawRecord{"id": "a1", "name": "ERP"}, mappingOf())
	require.NoError(t, err)
	require.True(t, in.IsEmpty())
}

func TestRewriteDiagramDocument(t *testing.T) {
	doc := `{"type":"excalidraw","elements":[` +
		`{"id":"e1","customData":{"elementId":"c1","elementType":"capability"}},` +
		`{"id":"e2","customData":{"elementId":"unknown"}},` +
		`{"id":"e3"},` +
		`{"id":"e4","customData":{"entityId":"a1"}}]}`
	out, n, err := NewResolver().RewriteDiagramDocument(doc, mappingOf("c1", "idX", "a1", "idA"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "idX", gjson.Get(out, "elements.0.customData.elementId").String())
	require.Equal(t, "capability", gjson.Get(out, "elements.0.customData.elementType").String())
	require.Equal(t, "unknown", gjson.Get(out, "elements.1.customData.elementId").String())
	require.Equal(t, "idA", gjson.Get(out, "elements.3.customData.entityId").String())
	require.Equal(t, "excalidraw", gjson.Get(out, "type").String())

	same, n, err := NewResolver().RewriteDiagramDocument(doc, mappingOf())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, doc, same)

	_, _, err = NewResolver().RewriteDiagramDocument(`{"elements":[`, mappingOf())
	require.ErrorIs(t, err, ErrInvalidDocument)
}

func TestDiagramPayloadCarriesRewrittenDocument(t *testing.T) {
	row := record.RawRecord{
		"id":          "d1",
		"title":       "Landscape",
		"creator":     map[string]any{"id": "p1"},
		"diagramJson": map[string]any{"elements": []any{map[string]any{"customData": map[string]any{"elementId": "c1"}}}},
	}
	in, err := NewResolver().BuildRelationshipPayload(schema.Diagram, row, mappingOf("c1", "idX", "p1", "idP"))
	require.NoError(t, err)
	require.Equal(t, domain.Connection{IDs: []string{"idP"}}, in.Connect["creator"])
	doc, ok := in.Set["diagramJson"].(string)
	require.True(t, ok)
	require.Equal(t, "idX", gjson.Get(doc, "elements.0.customData.elementId").String())
}
