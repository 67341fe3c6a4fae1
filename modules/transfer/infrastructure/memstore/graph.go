// Package memstore is an in-memory Entity Store Client. It backs dry runs and
// doubles as the store fake in tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-faster/errors"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpExists Op = "exists"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

// Call is one store invocation as seen by the graph.
type Call struct {
	Type   schema.EntityType
	Op     Op
	ID     string
	Create domain.CreateInput
	Update domain.UpdateInput
}

type node struct {
	id     string
	typ    schema.EntityType
	label  string
	fields map[string]any
}

type edge struct {
	from, rel, to      string
	fromLabel, toLabel string
}

type failure struct {
	typ   schema.EntityType
	op    Op
	match func(Call) bool
	err   error
}

// Graph holds nodes of every entity type plus the edges between them.
// Companies are external: edges to a Company label are kept without a node.
type Graph struct {
	mu       sync.Mutex
	nodes    map[string]*node
	order    []string
	edges    []edge
	keys     map[string]string
	seq      int
	calls    []Call
	failures []failure
}

func New() *Graph {
	return &Graph{
		nodes: map[string]*node{},
		keys:  map[string]string{},
	}
}

// Store implements domain.StoreRegistry.
func (g *Graph) Store(t schema.EntityType) (domain.EntityStore, error) {
	s, ok := schema.Of(t)
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownEntityType, "memstore %q", t)
	}
	return &typedStore{g: g, s: s}, nil
}

// Fail makes every matching call of op on t return err. A nil match applies
// to all calls.
func (g *Graph) Fail(t schema.EntityType, op Op, match func(Call) bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, failure{typ: t, op: op, match: match, err: err})
}

// Calls returns the recorded calls of op on t.
func (g *Graph) Calls(t schema.EntityType, op Op) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.calls {
		if c.Type == t && c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Seed inserts a node with a fixed id, as if it already existed in the store.
func (g *Graph) Seed(t schema.EntityType, id string, fields map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := schema.MustOf(t)
	g.putNode(&node{id: id, typ: t, label: s.GraphQL.Type, fields: copyFields(fields)})
}

// Len counts the nodes of type t.
func (g *Graph) Len(t schema.EntityType) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, id := range g.order {
		if g.nodes[id].typ == t {
			n++
		}
	}
	return n
}

// Get returns a node of any type with its relationships expanded.
func (g *Graph) Get(id string) (domain.Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return g.render(n, schema.MustOf(n.typ)), true
}

func (g *Graph) putNode(n *node) {
	if _, exists := g.nodes[n.id]; !exists {
		g.order = append(g.order, n.id)
	}
	g.nodes[n.id] = n
}

func (g *Graph) record(c Call) error {
	g.calls = append(g.calls, c)
	for _, f := range g.failures {
		if f.typ != c.Type || f.op != c.Op {
			continue
		}
		if f.match == nil || f.match(c) {
			return f.err
		}
	}
	return nil
}

func (g *Graph) nextID(t schema.EntityType) string {
	g.seq++
	return fmt.Sprintf("%s-%d", t, g.seq)
}

func (g *Graph) connect(n *node, s *schema.Schema, field string, c domain.Connection) error {
	r, ok := s.Relationship(field)
	if !ok {
		return errors.Errorf("%s has no relationship %q", s.Type, field)
	}
	other := r.TargetLabel()
	if !r.Many {
		g.dropEdges(n, r)
	}
	for _, id := range c.IDs {
		if r.Target != "" {
			target, ok := g.nodes[id]
			// connect with a where that matches nothing is a no-op
			if !ok || target.typ != r.Target {
				continue
			}
		}
		e := edge{rel: r.Rel}
		if r.Direction == schema.DirectionOut {
			e.from, e.fromLabel, e.to, e.toLabel = n.id, n.label, id, other
		} else {
			e.from, e.fromLabel, e.to, e.toLabel = id, other, n.id, n.label
		}
		if !g.hasEdge(e) {
			g.edges = append(g.edges, e)
		}
	}
	return nil
}

func (g *Graph) hasEdge(e edge) bool {
	for _, x := range g.edges {
		if x == e {
			return true
		}
	}
	return false
}

func (g *Graph) dropEdges(n *node, r schema.Relationship) {
	kept := g.edges[:0]
	for _, e := range g.edges {
		if g.matches(e, n, r) {
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
}

func (g *Graph) matches(e edge, n *node, r schema.Relationship) bool {
	if e.rel != r.Rel {
		return false
	}
	if r.Direction == schema.DirectionOut {
		return e.from == n.id && e.toLabel == r.TargetLabel()
	}
	return e.to == n.id && e.fromLabel == r.TargetLabel()
}

func (g *Graph) related(n *node, r schema.Relationship) []string {
	var ids []string
	for _, e := range g.edges {
		if !g.matches(e, n, r) {
			continue
		}
		if r.Direction == schema.DirectionOut {
			ids = append(ids, e.to)
		} else {
			ids = append(ids, e.from)
		}
	}
	sort.Strings(ids)
	return ids
}

func (g *Graph) render(n *node, s *schema.Schema) domain.Record {
	out := domain.Record{"id": n.id}
	for k, v := range n.fields {
		out[k] = v
	}
	for _, r := range s.Relationships {
		ids := g.related(n, r)
		if r.Many {
			refs := make([]map[string]any, 0, len(ids))
			for _, id := range ids {
				refs = append(refs, map[string]any{"id": id})
			}
			out[r.Field] = refs
			continue
		}
		if len(ids) > 0 {
			out[r.Field] = map[string]any{"id": ids[0]}
		} else {
			out[r.Field] = nil
		}
	}
	return out
}

func (g *Graph) inScope(n *node, scope domain.Scope) bool {
	if scope.IsZero() {
		return true
	}
	for _, e := range g.edges {
		if e.from == n.id && e.rel == "BELONGS_TO" && e.to == scope.CompanyID {
			return true
		}
	}
	return false
}

func (g *Graph) removeNode(id string) {
	delete(g.nodes, id)
	for k, v := range g.keys {
		if v == id {
			delete(g.keys, k)
		}
	}
	order := g.order[:0]
	for _, x := range g.order {
		if x != id {
			order = append(order, x)
		}
	}
	g.order = order
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.from != id && e.to != id {
			kept = append(kept, e)
		}
	}
	g.edges = kept
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type typedStore struct {
	g *Graph
	s *schema.Schema
}

var _ domain.EntityStore = (*typedStore)(nil)
var _ domain.Getter = (*typedStore)(nil)

func (t *typedStore) Create(_ context.Context, in domain.CreateInput) (domain.Record, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(Call{Type: t.s.Type, Op: OpCreate, Create: in}); err != nil {
		return nil, err
	}
	if in.IdempotencyKey != "" {
		if id, seen := g.keys[in.IdempotencyKey]; seen {
			if n, ok := g.nodes[id]; ok {
				return g.render(n, t.s), nil
			}
		}
	}
	n := &node{id: g.nextID(t.s.Type), typ: t.s.Type, label: t.s.GraphQL.Type, fields: copyFields(in.Fields)}
	delete(n.fields, "id")
	g.putNode(n)
	if in.IdempotencyKey != "" {
		g.keys[in.IdempotencyKey] = n.id
	}
	return g.render(n, t.s), nil
}

func (t *typedStore) Update(_ context.Context, id string, in domain.UpdateInput) (domain.Record, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(Call{Type: t.s.Type, Op: OpUpdate, ID: id, Update: in}); err != nil {
		return nil, err
	}
	n, ok := g.nodes[id]
	if !ok || n.typ != t.s.Type {
		return nil, errors.Wrapf(domain.ErrNotFound, "%s %q", t.s.GraphQL.Type, id)
	}
	for k, v := range in.Set {
		if k == "id" {
			continue
		}
		n.fields[k] = v
	}
	for _, field := range in.ConnectFields() {
		if err := g.connect(n, t.s, field, in.Connect[field]); err != nil {
			return nil, err
		}
	}
	return g.render(n, t.s), nil
}

func (t *typedStore) Exists(_ context.Context, id string) (bool, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(Call{Type: t.s.Type, Op: OpExists, ID: id}); err != nil {
		return false, err
	}
	n, ok := g.nodes[id]
	return ok && n.typ == t.s.Type, nil
}

func (t *typedStore) DeleteWhere(_ context.Context, scope domain.Scope) (int, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(Call{Type: t.s.Type, Op: OpDelete}); err != nil {
		return 0, err
	}
	var doomed []string
	for _, id := range g.order {
		n := g.nodes[id]
		if n.typ == t.s.Type && g.inScope(n, scope) {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		g.removeNode(id)
	}
	return len(doomed), nil
}

func (t *typedStore) List(_ context.Context, scope domain.Scope) ([]domain.Record, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(Call{Type: t.s.Type, Op: OpList}); err != nil {
		return nil, err
	}
	var out []domain.Record
	for _, id := range g.order {
		n := g.nodes[id]
		if n.typ == t.s.Type && g.inScope(n, scope) {
			out = append(out, g.render(n, t.s))
		}
	}
	return out, nil
}

func (t *typedStore) Get(_ context.Context, id string) (domain.Record, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok || n.typ != t.s.Type {
		return nil, errors.Wrapf(domain.ErrNotFound, "%s %q", t.s.GraphQL.Type, id)
	}
	return g.render(n, t.s), nil
}
