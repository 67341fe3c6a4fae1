package graphql

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/tidwall/gjson"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

// Registry hands out one store per catalog entity type, all sharing a client.
type Registry struct {
	stores map[schema.EntityType]*entityStore
}

func NewRegistry(c *Client) (*Registry, error) {
	if c == nil {
		return nil, errors.New("graphql client is required")
	}
	r := &Registry{stores: map[schema.EntityType]*entityStore{}}
	for _, t := range schema.All() {
		s := schema.MustOf(t)
		ops, err := buildOperations(s)
		if err != nil {
			return nil, err
		}
		r.stores[t] = &entityStore{c: c, s: s, ops: ops}
	}
	return r, nil
}

func (r *Registry) Store(t schema.EntityType) (domain.EntityStore, error) {
	s, ok := r.stores[t]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownEntityType, "%q", t)
	}
	return s, nil
}

type entityStore struct {
	c   *Client
	s   *schema.Schema
	ops *operations
}

var (
	_ domain.EntityStore = (*entityStore)(nil)
	_ domain.Getter      = (*entityStore)(nil)
)

func (e *entityStore) Create(ctx context.Context, in domain.CreateInput) (domain.Record, error) {
	req := e.ops.create
	req.Variables = map[string]any{"input": []any{in.Fields}}
	data, err := e.c.Do(ctx, req, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	node := gjson.GetBytes(data, e.ops.createField+"."+e.ops.listField+".0")
	if !node.Exists() {
		return nil, errors.Errorf("%s returned no node", req.OperationName)
	}
	return decodeRecord(node)
}

func (e *entityStore) Update(ctx context.Context, id string, in domain.UpdateInput) (domain.Record, error) {
	req := e.ops.update
	req.Variables = map[string]any{"id": id, "update": updateVariables(in)}
	data, err := e.c.Do(ctx, req, "")
	if err != nil {
		return nil, err
	}
	node := gjson.GetBytes(data, e.ops.updateField+"."+e.ops.listField+".0")
	if !node.Exists() {
		return nil, errors.Wrapf(domain.ErrNotFound, "%s %q", e.s.Type, id)
	}
	return decodeRecord(node)
}

func (e *entityStore) Exists(ctx context.Context, id string) (bool, error) {
	req := e.ops.exists
	req.Variables = map[string]any{"id": id}
	data, err := e.c.Do(ctx, req, "")
	if err != nil {
		return false, err
	}
	return gjson.GetBytes(data, e.ops.listField+".#").Int() > 0, nil
}

func (e *entityStore) Get(ctx context.Context, id string) (domain.Record, error) {
	req := e.ops.get
	req.Variables = map[string]any{"id": id}
	data, err := e.c.Do(ctx, req, "")
	if err != nil {
		return nil, err
	}
	node := gjson.GetBytes(data, e.ops.listField+".0")
	if !node.Exists() {
		return nil, errors.Wrapf(domain.ErrNotFound, "%s %q", e.s.Type, id)
	}
	return decodeRecord(node)
}

func (e *entityStore) List(ctx context.Context, scope domain.Scope) ([]domain.Record, error) {
	where, err := scopeWhere(e.s, scope)
	if err != nil {
		return nil, err
	}
	req := e.ops.list
	req.Variables = map[string]any{"where": where}
	data, err := e.c.Do(ctx, req, "")
	if err != nil {
		return nil, err
	}
	nodes := gjson.GetBytes(data, e.ops.listField).Array()
	out := make([]domain.Record, 0, len(nodes))
	for _, n := range nodes {
		rec, err := decodeRecord(n)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *entityStore) DeleteWhere(ctx context.Context, scope domain.Scope) (int, error) {
	where, err := scopeWhere(e.s, scope)
	if err != nil {
		return 0, err
	}
	req := e.ops.delete
	req.Variables = map[string]any{"where": where}
	data, err := e.c.Do(ctx, req, "")
	if err != nil {
		return 0, err
	}
	return int(gjson.GetBytes(data, e.ops.deleteField+".nodesDeleted").Int()), nil
}

func decodeRecord(node gjson.Result) (domain.Record, error) {
	rec := domain.Record{}
	if err := json.Unmarshal([]byte(node.Raw), &rec); err != nil {
		return nil, errors.Wrap(err, "decode node")
	}
	return rec, nil
}

// updateVariables renders scalar fields as {field: {set: v}} and
// relationship fields as connect clauses matching nodes by id.
func updateVariables(in domain.UpdateInput) map[string]any {
	out := make(map[string]any, len(in.Set)+len(in.Connect))
	for f, v := range in.Set {
		out[f] = map[string]any{"set": v}
	}
	for _, f := range in.ConnectFields() {
		c := in.Connect[f]
		if len(c.IDs) == 0 {
			continue
		}
		if c.Many {
			out[f] = []any{map[string]any{
				"connect": []any{map[string]any{"where": nodeWhere(c.IDs)}},
			}}
			continue
		}
		out[f] = map[string]any{
			"connect": map[string]any{"where": nodeWhere(c.IDs[:1])},
		}
	}
	return out
}

func nodeWhere(ids []string) map[string]any {
	if len(ids) == 1 {
		return map[string]any{"node": map[string]any{"id": map[string]any{"eq": ids[0]}}}
	}
	return map[string]any{"node": map[string]any{"id": map[string]any{"in": ids}}}
}

// scopeWhere filters on the company relationship. A zero scope selects every node.
func scopeWhere(s *schema.Schema, scope domain.Scope) (map[string]any, error) {
	if scope.IsZero() {
		return nil, nil
	}
	rel, ok := s.Relationship("company")
	if !ok {
		return nil, errors.Errorf("%s cannot be scoped to a company", s.Type)
	}
	match := map[string]any{"id": map[string]any{"eq": scope.CompanyID}}
	if rel.Many {
		return map[string]any{"company": map[string]any{"some": match}}, nil
	}
	return map[string]any{"company": match}, nil
}
