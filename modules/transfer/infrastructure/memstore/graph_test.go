package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

func mustStore(t *testing.T, g domain.StoreRegistry, et schema.EntityType) domain.EntityStore {
	t.Helper()
	s, err := g.Store(et)
	require.NoError(t, err)
	return s
}

func TestCreateUpdateConnect(t *testing.T) {
	ctx := context.Background()
	g := New()
	caps := mustStore(t, g, schema.Capability)

	parent, err := caps.Create(ctx, domain.CreateInput{Fields: map[string]any{"name": "Payments"}})
	require.NoError(t, err)
	child, err := caps.Create(ctx, domain.CreateInput{Fields: map[string]any{"name": "Checkout"}})
	require.NoError(t, err)

	_, err = caps.Update(ctx, child.ID(), domain.UpdateInput{
		Connect: map[string]domain.Connection{"parents": {IDs: []string{parent.ID(), "missing"}, Many: true}},
	})
	require.NoError(t, err)

	got, ok := g.Get(child.ID())
	require.True(t, ok)
	require.Equal(t, []map[string]any{{"id": parent.ID()}}, got["parents"])

	// the inverse field sees the same edge
	got, _ = g.Get(parent.ID())
	require.Equal(t, []map[string]any{{"id": child.ID()}}, got["children"])

	exists, err := caps.Exists(ctx, parent.ID())
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = mustStore(t, g, schema.Application).Exists(ctx, parent.ID())
	require.NoError(t, err)
	require.False(t, exists)
}

func TestToOneConnectReplaces(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.Seed(schema.Person, "p1", map[string]any{"firstName": "Ada", "lastName": "Lovelace"})
	g.Seed(schema.Person, "p2", map[string]any{"firstName": "Alan", "lastName": "Turing"})
	g.Seed(schema.Diagram, "d1", map[string]any{"title": "Landscape"})
	diagrams := mustStore(t, g, schema.Diagram)

	for _, p := range []string{"p1", "p2"} {
		_, err := diagrams.Update(ctx, "d1", domain.UpdateInput{
			Connect: map[string]domain.Connection{"creator": {IDs: []string{p}}},
		})
		require.NoError(t, err)
	}
	got, _ := g.Get("d1")
	require.Equal(t, map[string]any{"id": "p2"}, got["creator"])
}

func TestIdempotencyKeyDedupesCreate(t *testing.T) {
	ctx := context.Background()
	g := New()
	apps := mustStore(t, g, schema.Application)
	a, err := apps.Create(ctx, domain.CreateInput{Fields: map[string]any{"name": "ERP"}, IdempotencyKey: "k"})
	require.NoError(t, err)
	b, err := apps.Create(ctx, domain.CreateInput{Fields: map[string]any{"name": "ERP"}, IdempotencyKey: "k"})
	require.NoError(t, err)
	require.Equal(t, a.ID(), b.ID())
	require.Equal(t, 1, g.Len(schema.Application))
}

func TestScopeAppliesToListAndDelete(t *testing.T) {
	ctx := context.Background()
	g := New()
	apps := mustStore(t, g, schema.Application)
	for _, company := range []string{"acme", "acme", "globex"} {
		rec, err := apps.Create(ctx, domain.CreateInput{Fields: map[string]any{"name": "x"}})
		require.NoError(t, err)
		_, err = apps.Update(ctx, rec.ID(), domain.UpdateInput{
			Connect: map[string]domain.Connection{"company": {IDs: []string{company}}},
		})
		require.NoError(t, err)
	}

	list, err := apps.List(ctx, domain.Scope{CompanyID: "acme"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, map[string]any{"id": "acme"}, list[0]["company"])

	n, err := apps.DeleteWhere(ctx, domain.Scope{CompanyID: "acme"})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 1, g.Len(schema.Application))
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	g := New()
	boom := errors.New("boom")
	g.Fail(schema.Capability, OpCreate, func(c Call) bool { return c.Create.Fields["name"] == "bad" }, boom)
	caps := mustStore(t, g, schema.Capability)

	_, err := caps.Create(ctx, domain.CreateInput{Fields: map[string]any{"name": "bad"}})
	require.ErrorIs(t, err, boom)
	_, err = caps.Create(ctx, domain.CreateInput{Fields: map[string]any{"name": "good"}})
	require.NoError(t, err)
	require.Len(t, g.Calls(schema.Capability, OpCreate), 2)

	_, err = caps.Update(ctx, "nope", domain.UpdateInput{Set: map[string]any{"name": "x"}})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOverlayNeverWritesToBase(t *testing.T) {
	ctx := context.Background()
	base := New()
	base.Seed(schema.Capability, "c1", map[string]any{"name": "Payments", "status": "ACTIVE"})
	o := NewOverlay(base)
	caps := mustStore(t, o, schema.Capability)

	exists, err := caps.Exists(ctx, "c1")
	require.NoError(t, err)
	require.True(t, exists)

	_, err = caps.Update(ctx, "c1", domain.UpdateInput{Set: map[string]any{"name": "Payments v2"}})
	require.NoError(t, err)
	created, err := caps.Create(ctx, domain.CreateInput{Fields: map[string]any{"name": "Checkout"}})
	require.NoError(t, err)
	_, err = caps.Update(ctx, created.ID(), domain.UpdateInput{
		Connect: map[string]domain.Connection{"parents": {IDs: []string{"c1"}, Many: true}},
	})
	require.NoError(t, err)

	rec, _ := base.Get("c1")
	require.Equal(t, "Payments", rec["name"])
	require.Equal(t, 1, base.Len(schema.Capability))
	require.Empty(t, base.Calls(schema.Capability, OpUpdate))

	previews := o.Previews()
	require.Len(t, previews, 3)
	require.Equal(t, OpUpdate, previews[0].Op)
	require.NotEmpty(t, previews[0].Patch)
	require.Equal(t, OpCreate, previews[1].Op)

	_, err = caps.DeleteWhere(ctx, domain.Scope{})
	require.ErrorIs(t, err, ErrReadOnly)
}
