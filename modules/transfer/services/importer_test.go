package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/memstore"
)

func newTestImporter(g domain.StoreRegistry, opts ImporterOptions) *Importer {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewImporter(g, opts)
}

func ids(refs any) []string {
	return record.ExtractIDs(refs)
}

func TestImportResolvesForwardReferences(t *testing.T) {
	g := memstore.New()
	res, err := newTestImporter(g, ImporterOptions{}).Import(context.Background(), schema.Capability, []record.RawRecord{
		{"id": "c1", "name": "Payments", "parents": ""},
		{"id": "c2", "name": "Checkout", "parents": "c1"},
	}, record.FormatTabular, nil)
	require.NoError(t, err)

	require.Equal(t, 2, res.TotalImported)
	require.Zero(t, res.TotalFailed)
	idX, ok := res.Mapping.Lookup("c1")
	require.True(t, ok)
	idY, ok := res.Mapping.Lookup("c2")
	require.True(t, ok)
	require.NotEqual(t, "c1", idX)

	updates := g.Calls(schema.Capability, memstore.OpUpdate)
	require.Len(t, updates, 1)
	require.Equal(t, idY, updates[0].ID)
	require.Equal(t, map[string]domain.Connection{"parents": {IDs: []string{idX}, Many: true}}, updates[0].Update.Connect)

	checkout, _ := g.Get(idY)
	require.Equal(t, []string{idX}, ids(checkout["parents"]))
	require.Equal(t, 1, res.Results[0].RelationshipsUpdated)
}

func TestImportAcrossTabsResolvesReferencesToLaterTabs(t *testing.T) {
	g := memstore.New()
	res, err := newTestImporter(g, ImporterOptions{}).ImportBatch(context.Background(), Batch{
		Format: record.FormatJSON,
		Tabs: []BatchTab{
			{Name: "Applications", EntityType: schema.Application, Records: []record.RawRecord{
				{"id": "a1", "name": "ERP", "supportsCapabilities": []any{map[string]any{"id": "c1"}}, "owners": []any{"p1"}},
			}},
			{Name: "Capabilities", EntityType: schema.Capability, Records: []record.RawRecord{
				{"id": "c1", "name": "Finance"},
			}},
			{Name: "People", EntityType: schema.Person, Records: []record.RawRecord{
				{"id": "p1", "firstName": "Ada", "lastName": "Lovelace"},
			}},
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, res.TotalImported)

	app, _ := g.Get(res.Mapping.Resolve("a1"))
	require.Equal(t, []string{res.Mapping.Resolve("c1")}, ids(app["supportsCapabilities"]))
	require.Equal(t, []string{res.Mapping.Resolve("p1")}, ids(app["owners"]))

	capability, _ := g.Get(res.Mapping.Resolve("c1"))
	require.Equal(t, []string{res.Mapping.Resolve("a1")}, ids(capability["supportedByApplications"]))
}

func TestImportIsolatesRowFailures(t *testing.T) {
	g := memstore.New()
	g.Fail(schema.Application, memstore.OpCreate, func(c memstore.Call) bool {
		return c.Create.Fields["name"] == "Broken"
	}, gqlerror.List{gqlerror.Errorf("Constraint violation: name must be unique")})

	rows := []record.RawRecord{
		{"id": "a1", "name": "ERP"},
		{"id": "a2", "name": "Broken", "supportsCapabilities": "c9"},
		{"id": "a3", "name": "CRM", "children": "a1"},
	}
	res, err := newTestImporter(g, ImporterOptions{}).Import(context.Background(), schema.Application, rows, record.FormatTabular, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalImported)
	require.Equal(t, 1, res.TotalFailed)
	require.Equal(t, []string{"Row 2: Constraint violation: name must be unique"}, res.Results[0].Errors)

	_, mapped := res.Mapping.Lookup("a2")
	require.False(t, mapped)
	require.Equal(t, 2, g.Len(schema.Application))

	crm, _ := g.Get(res.Mapping.Resolve("a3"))
	require.Equal(t, []string{res.Mapping.Resolve("a1")}, ids(crm["children"]))
	require.True(t, res.HasFailures())
}

func TestImportMatchesExistingNodes(t *testing.T) {
	g := memstore.New()
	g.Seed(schema.Capability, "cap-42", map[string]any{"name": "Old name", "status": "ACTIVE"})

	res, err := newTestImporter(g, ImporterOptions{}).Import(context.Background(), schema.Capability, []record.RawRecord{
		{"id": "cap-42", "name": "New name", "status": "archived"},
	}, record.FormatTabular, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Results[0].Updated)
	require.Zero(t, res.Results[0].Created)
	require.Equal(t, "cap-42", res.Mapping.Resolve("cap-42"))

	node, _ := g.Get("cap-42")
	require.Equal(t, "New name", node["name"])
	require.Equal(t, "ARCHIVED", node["status"])
	require.Equal(t, 1, g.Len(schema.Capability))

	up := g.Calls(schema.Capability, memstore.OpUpdate)
	require.Len(t, up, 1)
	require.Empty(t, up[0].Update.Connect)
}

func TestImportTwiceDoesNotDuplicate(t *testing.T) {
	g := memstore.New()
	rows := []record.RawRecord{
		{"id": "c1", "name": "Payments"},
		{"id": "c2", "name": "Checkout", "parents": "c1"},
	}
	imp := newTestImporter(g, ImporterOptions{})
	_, err := imp.Import(context.Background(), schema.Capability, rows, record.FormatTabular, nil)
	require.NoError(t, err)
	second, err := imp.Import(context.Background(), schema.Capability, rows, record.FormatTabular, nil)
	require.NoError(t, err)
	require.Zero(t, second.TotalFailed)
	require.Equal(t, 2, g.Len(schema.Capability))
}

func TestImportRoundTripOfExportedIDsUpdates(t *testing.T) {
	g := memstore.New()
	imp := newTestImporter(g, ImporterOptions{})
	first, err := imp.Import(context.Background(), schema.Capability, []record.RawRecord{
		{"id": "c1", "name": "Payments"},
		{"id": "c2", "name": "Checkout", "parents": "c1"},
	}, record.FormatTabular, nil)
	require.NoError(t, err)

	exported, err := NewExporter(g, ExporterOptions{}).Export(context.Background(), []schema.EntityType{schema.Capability}, record.FormatTabular, domain.Scope{})
	require.NoError(t, err)
	before := exported[schema.Capability]

	again, err := imp.Import(context.Background(), schema.Capability, before, record.FormatTabular, nil)
	require.NoError(t, err)
	require.Equal(t, 2, again.Results[0].Updated)
	require.Equal(t, first.Mapping.Resolve("c2"), again.Mapping.Resolve(first.Mapping.Resolve("c2")))

	after, err := NewExporter(g, ExporterOptions{}).Export(context.Background(), []schema.EntityType{schema.Capability}, record.FormatTabular, domain.Scope{})
	require.NoError(t, err)
	require.Equal(t, before, after[schema.Capability])
}

func TestImportFormatsProduceTheSameGraph(t *testing.T) {
	tabular := memstore.New()
	_, err := newTestImporter(tabular, ImporterOptions{}).Import(context.Background(), schema.Capability, []record.RawRecord{
		{"id": "c1", "name": "Payments", "maturityLevel": "3", "tags": "core, money"},
		{"id": "c2", "name": "Checkout", "parents": "c1", "owners": ""},
	}, record.FormatTabular, nil)
	require.NoError(t, err)

	var rows []record.RawRecord
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id":"c1","name":"Payments","maturityLevel":3,"tags":["core","money"]},
		{"id":"c2","name":"Checkout","parents":[{"id":"c1","name":"Payments"}],"owners":[]}
	]`), &rows))
	nested := memstore.New()
	_, err = newTestImporter(nested, ImporterOptions{}).Import(context.Background(), schema.Capability, rows, record.FormatJSON, nil)
	require.NoError(t, err)

	a, err := mustList(t, tabular, schema.Capability)
	require.NoError(t, err)
	b, err := mustList(t, nested, schema.Capability)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func mustList(t *testing.T, reg domain.StoreRegistry, et schema.EntityType) ([]domain.Record, error) {
	t.Helper()
	s, err := reg.Store(et)
	require.NoError(t, err)
	return s.List(context.Background(), domain.Scope{})
}

func TestImportSurfacesRelationshipFailuresSeparately(t *testing.T) {
	g := memstore.New()
	g.Fail(schema.Capability, memstore.OpUpdate, nil, errors.New("connection reset"))
	res, err := newTestImporter(g, ImporterOptions{}).Import(context.Background(), schema.Capability, []record.RawRecord{
		{"id": "c1", "name": "Payments"},
		{"id": "c2", "name": "Checkout", "parents": "c1"},
	}, record.FormatTabular, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalImported)
	require.Zero(t, res.TotalFailed)
	require.Equal(t, 1, res.TotalRelationshipFailed)
	require.Equal(t, []string{"Row 2: connection reset"}, res.Results[0].RelationshipErrors)
}

func TestImportStrictValidation(t *testing.T) {
	g := memstore.New()
	imp := newTestImporter(g, ImporterOptions{StrictValidation: true})
	res, err := imp.Import(context.Background(), schema.Capability, []record.RawRecord{
		{"id": "c1"},
	}, record.FormatTabular, nil)
	require.ErrorIs(t, err, ErrValidationFailed)
	require.NotNil(t, res.Validation)
	require.Empty(t, g.Calls(schema.Capability, memstore.OpCreate))

	// advisory by default: the row is created with a generated name
	res, err = newTestImporter(g, ImporterOptions{}).Import(context.Background(), schema.Capability, []record.RawRecord{
		{"id": "c1"},
	}, record.FormatTabular, nil)
	require.NoError(t, err)
	node, _ := g.Get(res.Mapping.Resolve("c1"))
	require.Equal(t, "Capability c1", node["name"])
}

func TestImportReportsProgressInPhaseBudgets(t *testing.T) {
	g := memstore.New()
	var rows []record.RawRecord
	for i := 0; i < 12; i++ {
		rows = append(rows, record.RawRecord{"id": fmt.Sprintf("c%d", i), "name": "n", "parents": "c0"})
	}
	var events []domain.Progress
	_, err := newTestImporter(g, ImporterOptions{ProgressEvery: 4}).Import(context.Background(), schema.Capability, rows, record.FormatTabular, func(p domain.Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	require.Equal(t, domain.PhaseCreate, events[0].Phase)
	require.Zero(t, events[0].Percent)
	last := -1.0
	for _, e := range events {
		require.GreaterOrEqual(t, e.Percent, last)
		last = e.Percent
		switch e.Phase {
		case domain.PhaseCreate:
			require.LessOrEqual(t, e.Percent, 70.0)
		case domain.PhaseRelationships:
			require.GreaterOrEqual(t, e.Percent, 70.0)
		}
	}
	require.Equal(t, domain.PhaseDone, events[len(events)-1].Phase)
	require.Equal(t, 100.0, last)
}

func TestImportStopsAtRowBoundaryWhenCancelled(t *testing.T) {
	g := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rows := []record.RawRecord{{"id": "a"}, {"id": "b"}, {"id": "c"}, {"id": "d"}}
	res, err := newTestImporter(g, ImporterOptions{ProgressEvery: 2}).Import(ctx, schema.Capability, rows, record.FormatTabular, func(p domain.Progress) {
		if p.Processed == 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, res.TotalImported)
	require.Equal(t, 2, res.Mapping.Len())
	require.Equal(t, 2, g.Len(schema.Capability))
}

func TestImportRejectsEmptyAndUnknown(t *testing.T) {
	imp := newTestImporter(memstore.New(), ImporterOptions{})
	_, err := imp.ImportBatch(context.Background(), Batch{}, nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
	_, err = imp.Import(context.Background(), "widget", []record.RawRecord{{"id": "x"}}, record.FormatJSON, nil)
	require.ErrorIs(t, err, ErrUnknownEntityType)
}

func TestErrorMessagePrefersReportedText(t *testing.T) {
	wrapped := fmt.Errorf("post: %w", gqlerror.List{gqlerror.Errorf("first"), gqlerror.Errorf("second")})
	require.Equal(t, "first; second", ErrorMessage(wrapped))
	require.Equal(t, "plain", ErrorMessage(errors.New("plain")))
	require.Equal(t, "", ErrorMessage(nil))
}

func TestImportCreatesIdenticalRowsWithoutIDs(t *testing.T) {
	g := memstore.New()
	rows := []record.RawRecord{{"name": "Billing"}, {"name": "Billing"}}
	res, err := newTestImporter(g, ImporterOptions{}).Import(context.Background(), schema.Capability, rows, record.FormatJSON, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.Results[0].Created)
	require.Equal(t, 2, g.Len(schema.Capability))

	creates := g.Calls(schema.Capability, memstore.OpCreate)
	require.Len(t, creates, 2)
	require.NotEqual(t, creates[0].Create.IdempotencyKey, creates[1].Create.IdempotencyKey)
}

func TestImportAttachesRelationshipsToEachRowsOwnNode(t *testing.T) {
	g := memstore.New()
	res, err := newTestImporter(g, ImporterOptions{}).Import(context.Background(), schema.Capability, []record.RawRecord{
		{"id": "p", "name": "Parent"},
		{"id": "c1", "name": "First"},
		{"id": "c1", "name": "Second", "parents": "p"},
	}, record.FormatTabular, nil)
	require.NoError(t, err)
	require.Equal(t, 3, res.Results[0].Created)

	creates := g.Calls(schema.Capability, memstore.OpCreate)
	require.Len(t, creates, 3)
	updates := g.Calls(schema.Capability, memstore.OpUpdate)
	require.Len(t, updates, 1)

	first, _ := g.Get(res.Mapping.Resolve("c1"))
	require.Equal(t, "First", first["name"])
	require.Empty(t, ids(first["parents"]))
	require.NotEqual(t, res.Mapping.Resolve("c1"), updates[0].ID)

	second, ok := g.Get(updates[0].ID)
	require.True(t, ok)
	require.Equal(t, "Second", second["name"])
	require.Equal(t, []string{res.Mapping.Resolve("p")}, ids(second["parents"]))
}

func TestImportJSONRoundTripKeepsDiagramDocuments(t *testing.T) {
	ctx := context.Background()
	g := memstore.New()
	imp := newTestImporter(g, ImporterOptions{})
	first, err := imp.ImportBatch(ctx, Batch{Format: record.FormatJSON, Tabs: []BatchTab{
		{Name: "Capabilities", EntityType: schema.Capability, Records: []record.RawRecord{
			{"id": "c1", "name": "Payments"},
			{"id": "c2", "name": "Checkout", "parents": []any{map[string]any{"id": "c1"}}},
		}},
		{Name: "Diagrams", EntityType: schema.Diagram, Records: []record.RawRecord{
			{"id": "d1", "title": "Landscape", "diagramJson": `{"elements":[{"id":"e1","customData":{"entityId":"c2"}}]}`},
		}},
	}}, nil)
	require.NoError(t, err)
	require.False(t, first.HasFailures())

	types := []schema.EntityType{schema.Capability, schema.Diagram}
	exporter := NewExporter(g, ExporterOptions{})
	before, err := exporter.Export(ctx, types, record.FormatJSON, domain.Scope{})
	require.NoError(t, err)
	require.Len(t, before[schema.Diagram], 1)
	doc, ok := before[schema.Diagram][0]["diagramJson"].(string)
	require.True(t, ok)
	require.Contains(t, doc, first.Mapping.Resolve("c2"))
	require.NotContains(t, doc, `"c2"`)

	again, err := imp.ImportBatch(ctx, Batch{Format: record.FormatJSON, Tabs: []BatchTab{
		{Name: "Capabilities", EntityType: schema.Capability, Records: before[schema.Capability]},
		{Name: "Diagrams", EntityType: schema.Diagram, Records: before[schema.Diagram]},
	}}, nil)
	require.NoError(t, err)
	require.False(t, again.HasFailures())
	require.Equal(t, 2, again.Results[0].Updated)
	require.Equal(t, 1, again.Results[1].Updated)
	require.Equal(t, 2, g.Len(schema.Capability))
	require.Equal(t, 1, g.Len(schema.Diagram))

	after, err := exporter.Export(ctx, types, record.FormatJSON, domain.Scope{})
	require.NoError(t, err)
	require.Equal(t, before, after)

	tabular, err := exporter.Export(ctx, []schema.EntityType{schema.Diagram}, record.FormatTabular, domain.Scope{})
	require.NoError(t, err)
	require.Equal(t, "Landscape", tabular[schema.Diagram][0]["title"])
	require.NotContains(t, tabular[schema.Diagram][0], "diagramJson")
}
