package memstore

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/wI2L/jsondiff"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

var ErrReadOnly = errors.New("dry run store is read-only")

// Preview describes what an applied run would have done to one node.
type Preview struct {
	EntityType schema.EntityType `json:"entityType"`
	ID         string            `json:"id"`
	Op         Op                `json:"op"`
	Fields     map[string]any    `json:"fields,omitempty"`
	Patch      jsondiff.Patch    `json:"patch,omitempty"`
}

// Overlay writes into an in-memory graph and only ever reads from base. Nodes
// that exist in base are copied in on first sight so updates can be diffed.
type Overlay struct {
	mem  *Graph
	base domain.StoreRegistry

	mu       sync.Mutex
	before   map[string]domain.Record
	previews []Preview
}

func NewOverlay(base domain.StoreRegistry) *Overlay {
	return &Overlay{
		mem:    New(),
		base:   base,
		before: map[string]domain.Record{},
	}
}

func (o *Overlay) Store(t schema.EntityType) (domain.EntityStore, error) {
	mem, err := o.mem.Store(t)
	if err != nil {
		return nil, err
	}
	base, err := o.base.Store(t)
	if err != nil {
		return nil, err
	}
	return &overlayStore{o: o, s: schema.MustOf(t), mem: mem.(*typedStore), base: base}, nil
}

func (o *Overlay) Previews() []Preview {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Preview, len(o.previews))
	copy(out, o.previews)
	return out
}

func (o *Overlay) addPreview(p Preview) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.previews = append(o.previews, p)
}

type overlayStore struct {
	o    *Overlay
	s    *schema.Schema
	mem  *typedStore
	base domain.EntityStore
}

var _ domain.EntityStore = (*overlayStore)(nil)

// adopt copies a node that exists in base into the in-memory graph.
func (s *overlayStore) adopt(ctx context.Context, t *schema.Schema, base domain.EntityStore, id string) (bool, error) {
	if _, ok := s.o.mem.Get(id); ok {
		return true, nil
	}
	exists, err := base.Exists(ctx, id)
	if err != nil || !exists {
		return false, err
	}
	before := domain.Record{"id": id}
	if getter, ok := base.(domain.Getter); ok {
		if rec, err := getter.Get(ctx, id); err == nil {
			before = rec
		}
	}
	scalars := map[string]any{}
	for k, v := range before {
		if t.Kind(k) != schema.KindRelationship && k != schema.IDField {
			scalars[k] = v
		}
	}
	s.o.mem.Seed(t.Type, id, scalars)
	s.o.mu.Lock()
	s.o.before[id] = before
	s.o.mu.Unlock()
	return true, nil
}

func (s *overlayStore) Create(ctx context.Context, in domain.CreateInput) (domain.Record, error) {
	rec, err := s.mem.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.o.addPreview(Preview{EntityType: s.s.Type, ID: rec.ID(), Op: OpCreate, Fields: in.Fields})
	return rec, nil
}

func (s *overlayStore) Update(ctx context.Context, id string, in domain.UpdateInput) (domain.Record, error) {
	if _, err := s.adopt(ctx, s.s, s.base, id); err != nil {
		return nil, errors.Wrap(err, "read base node")
	}
	// referenced nodes that only exist in base have to be present for the connect to show up
	for _, field := range in.ConnectFields() {
		r, _ := s.s.Relationship(field)
		if r.Target == "" {
			continue
		}
		target, err := s.o.Store(r.Target)
		if err != nil {
			return nil, err
		}
		ts := target.(*overlayStore)
		for _, ref := range in.Connect[field].IDs {
			if _, err := ts.adopt(ctx, ts.s, ts.base, ref); err != nil {
				return nil, errors.Wrap(err, "read referenced node")
			}
		}
	}
	before, _ := s.o.mem.Get(id)
	after, err := s.mem.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.o.mu.Lock()
	if orig, ok := s.o.before[id]; ok {
		before = orig
	}
	s.o.mu.Unlock()
	patch, err := jsondiff.Compare(before, after)
	if err != nil {
		return nil, errors.Wrap(err, "diff")
	}
	s.o.addPreview(Preview{EntityType: s.s.Type, ID: id, Op: OpUpdate, Patch: patch})
	return after, nil
}

func (s *overlayStore) Exists(ctx context.Context, id string) (bool, error) {
	return s.adopt(ctx, s.s, s.base, id)
}

func (s *overlayStore) DeleteWhere(context.Context, domain.Scope) (int, error) {
	return 0, ErrReadOnly
}

func (s *overlayStore) List(ctx context.Context, scope domain.Scope) ([]domain.Record, error) {
	return s.base.List(ctx, scope)
}
