// Package domain declares the Entity Store Client contract the transfer engine
// runs against. Concrete stores live under infrastructure.
package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrUnknownEntityType  = errors.New("unknown entity type")
	ErrStoreNotConfigured = errors.New("no store configured for entity type")
)

// Record is a store-side node: scalar fields plus relationship fields shaped
// as []map[string]any{{"id": ...}} (to-many) or map[string]any{"id": ...} (to-one).
type Record map[string]any

func (r Record) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	if v, ok := r["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// CreateInput carries scalar fields only. Relationships are attached later
// through Update.
type CreateInput struct {
	Fields map[string]any
	// IdempotencyKey is derived from the source row. Stores that support it
	// return the node created earlier under the same key instead of creating
	// a second one.
	IdempotencyKey string
}

// Connection lists the ids a relationship field should be connected to.
type Connection struct {
	IDs  []string
	Many bool
}

// UpdateInput distinguishes scalar "set" payloads from relationship
// "connect" payloads; both may appear in one call.
type UpdateInput struct {
	Set     map[string]any
	Connect map[string]Connection
}

func (u UpdateInput) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Connect) == 0
}

// ConnectFields returns the relationship fields in a stable order.
func (u UpdateInput) ConnectFields() []string {
	out := make([]string, 0, len(u.Connect))
	for f := range u.Connect {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Scope restricts export and delete to one tenant. The zero value selects
// everything.
type Scope struct {
	CompanyID string
}

func (s Scope) IsZero() bool {
	return s.CompanyID == ""
}

// EntityStore is the per entity type client of the remote graph store. Every
// call is atomic on its own; there are no multi-entity transactions.
type EntityStore interface {
	Create(ctx context.Context, in CreateInput) (Record, error)
	Update(ctx context.Context, id string, in UpdateInput) (Record, error)
	Exists(ctx context.Context, id string) (bool, error)
	DeleteWhere(ctx context.Context, scope Scope) (int, error)
	List(ctx context.Context, scope Scope) ([]Record, error)
}

// Getter is implemented by stores that can fetch a single node. Dry runs use
// it to preview updates.
type Getter interface {
	Get(ctx context.Context, id string) (Record, error)
}

// StoreRegistry hands out the store for an entity type.
type StoreRegistry interface {
	Store(t schema.EntityType) (EntityStore, error)
}

// StoreFunc adapts a constructor to StoreRegistry.
type StoreFunc func(t schema.EntityType) (EntityStore, error)

func (f StoreFunc) Store(t schema.EntityType) (EntityStore, error) {
	return f(t)
}

// ResolveStores looks up the stores for all types once, so a batch never
// consults the registry row by row.
func ResolveStores(reg StoreRegistry, types []schema.EntityType) (map[schema.EntityType]EntityStore, error) {
	out := make(map[schema.EntityType]EntityStore, len(types))
	for _, t := range types {
		if _, ok := schema.Of(t); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, t)
		}
		if _, done := out[t]; done {
			continue
		}
		s, err := reg.Store(t)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotConfigured, t)
		}
		out[t] = s
	}
	return out, nil
}
