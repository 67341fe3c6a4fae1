package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func normalize(t *testing.T, rec record.RawRecord, et schema.EntityType, f record.Format) NormalizedInput {
	t.Helper()
	out, err := NewNormalizer(func() time.Time { return fixedNow }).Normalize(rec, et, f)
	require.NoError(t, err)
	return out
}

func TestNormalizeTabularCapability(t *testing.T) {
	out := normalize(t, record.RawRecord{
		"id":               "c2",
		"name":             " Checkout ",
		"maturityLevel":    "3",
		"businessValue":    "4,5",
		"status":           "planned",
		"type":             "nonsense",
		"introductionDate": "2023-05-01",
		"endDate":          "soon",
		"tags":             "a, b,,c",
		"parents":          "c1",
		"owners":           "",
		"unknownColumn":    "x",
	}, schema.Capability, record.FormatTabular)

	require.Equal(t, "c2", out.OriginalID)
	require.Equal(t, "Checkout", out.Fields["name"])
	require.Equal(t, int64(3), out.Fields["maturityLevel"])
	require.Equal(t, 4.5, out.Fields["businessValue"])
	require.Equal(t, "PLANNED", out.Fields["status"])
	require.Equal(t, "CORE", out.Fields["type"])
	require.Equal(t, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), out.Fields["introductionDate"])
	require.NotContains(t, out.Fields, "endDate")
	require.Equal(t, []string{"a", "b", "c"}, out.Fields["tags"])
	require.NotContains(t, out.Fields, "parents")
	require.NotContains(t, out.Fields, "unknownColumn")
	require.NotContains(t, out.Fields, "id")
	require.Equal(t, map[string]any{"parents": "c1"}, out.Deferred)
	require.NotEmpty(t, out.Notes)
}

func TestNormalizeEnumDefaultsWhenMissing(t *testing.T) {
	out := normalize(t, record.RawRecord{"name": "ERP"}, schema.Application, record.FormatTabular)
	require.Equal(t, "ACTIVE", out.Fields["status"])
	require.Equal(t, "MEDIUM", out.Fields["criticality"])

	out = normalize(t, record.RawRecord{"name": "Mail", "interfaceType": "message queue", "protocol": "grpc"}, schema.Interface, record.FormatTabular)
	require.Equal(t, "MESSAGE_QUEUE", out.Fields["interfaceType"])
	require.Equal(t, "GRPC", out.Fields["protocol"])
}

func TestNormalizeNameFallbacks(t *testing.T) {
	out := normalize(t, record.RawRecord{"id": "app-7"}, schema.Application, record.FormatTabular)
	require.Equal(t, "Application app-7", out.Fields["name"])

	long := "An application that does a great many things for a great many people in the company"
	out = normalize(t, record.RawRecord{"description": long}, schema.Application, record.FormatTabular)
	name := out.Fields["name"].(string)
	require.Equal(t, "An application that does a great many things for a...", name)

	out = normalize(t, record.RawRecord{}, schema.DataObject, record.FormatTabular)
	require.Equal(t, "Data object 2024-03-01 12:30:00", out.Fields["name"])

	out = normalize(t, record.RawRecord{"id": "d1"}, schema.Diagram, record.FormatJSON)
	require.Equal(t, "Diagram d1", out.Fields["title"])
}

func TestNormalizePersonNames(t *testing.T) {
	out := normalize(t, record.RawRecord{"name": "Ada King Lovelace"}, schema.Person, record.FormatJSON)
	require.Equal(t, "Ada", out.Fields["firstName"])
	require.Equal(t, "King Lovelace", out.Fields["lastName"])

	out = normalize(t, record.RawRecord{"email": "grace.hopper@navy.mil"}, schema.Person, record.FormatJSON)
	require.Equal(t, "Grace", out.Fields["firstName"])
	require.Equal(t, "Hopper", out.Fields["lastName"])

	out = normalize(t, record.RawRecord{"firstName": "Alan"}, schema.Person, record.FormatJSON)
	require.Equal(t, "Alan", out.Fields["firstName"])
	require.Equal(t, "Person 2024-03-01 12:30:00", out.Fields["lastName"])
}

func TestNormalizeJSONValues(t *testing.T) {
	out := normalize(t, record.RawRecord{
		"id":          "d1",
		"title":       "Landscape",
		"diagramJson": map[string]any{"elements": []any{}},
		"tags":        []any{"x", json.Number("2")},
		"creator":     map[string]any{"id": "p1"},
	}, schema.Diagram, record.FormatJSON)
	require.Equal(t, `{"elements":[]}`, out.Fields["diagramJson"])
	require.Equal(t, []string{"x", "2"}, out.Fields["tags"])
	require.Equal(t, map[string]any{"id": "p1"}, out.Deferred["creator"])

	out = normalize(t, record.RawRecord{"name": "P", "isActive": "ja"}, schema.ArchitecturePrinciple, record.FormatTabular)
	require.Equal(t, true, out.Fields["isActive"])

	out = normalize(t, record.RawRecord{"name": "AI", "trainingDate": "45000"}, schema.AIComponent, record.FormatTabular)
	require.Equal(t, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), out.Fields["trainingDate"])
}

func TestIdempotencyKeyIsStable(t *testing.T) {
	a := normalize(t, record.RawRecord{"id": "c1", "name": "Payments"}, schema.Capability, record.FormatTabular)
	b := normalize(t, record.RawRecord{"name": "Payments", "id": "c1"}, schema.Capability, record.FormatTabular)
	c := normalize(t, record.RawRecord{"id": "c1", "name": "Payments!"}, schema.Capability, record.FormatTabular)
	require.Equal(t, a.IdempotencyKey, b.IdempotencyKey)
	require.NotEqual(t, a.IdempotencyKey, c.IdempotencyKey)
}

func TestNormalizeUnknownType(t *testing.T) {
	_, err := NewNormalizer(nil).Normalize(record.RawRecord{}, "widget", record.FormatJSON)
	require.ErrorIs(t, err, ErrUnknownEntityType)
}

func TestNormalizeLeavesOutOfRangeSerialsUnset(t *testing.T) {
	out := normalize(t, record.RawRecord{"name": "Payments", "introductionDate": float64(1700000000000)}, schema.Capability, record.FormatJSON)
	require.NotContains(t, out.Fields, "introductionDate")
	require.NotEmpty(t, out.Notes)

	out = normalize(t, record.RawRecord{"name": "Payments", "introductionDate": json.Number("45000")}, schema.Capability, record.FormatJSON)
	require.Equal(t, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), out.Fields["introductionDate"])
}

func TestPositionedKeyIsStablePerRow(t *testing.T) {
	base := normalize(t, record.RawRecord{"name": "Billing"}, schema.Capability, record.FormatJSON).IdempotencyKey
	require.Equal(t, positionedKey(base, "Capabilities", 0), positionedKey(base, "Capabilities", 0))
	require.NotEqual(t, positionedKey(base, "Capabilities", 0), positionedKey(base, "Capabilities", 1))
	require.NotEqual(t, positionedKey(base, "Capabilities", 0), positionedKey(base, "Other", 0))
}
