package services

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

// documentRefKeys are the customData keys of a diagram element that point at
// catalog entities.
var documentRefKeys = []string{"elementId", "entityId"}

// Resolver turns the relationship columns of a source row into connect
// payloads, translating original ids through the run's mapping.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// BuildRelationshipPayload returns the relationship-only update for row.
// Fields absent from the row are left out, so existing relationships are
// never cleared.
func (r *Resolver) BuildRelationshipPayload(t schema.EntityType, row record.RawRecord, mapping *IdentifierMapping) (domain.UpdateInput, error) {
	s, ok := schema.Of(t)
	if !ok {
		return domain.UpdateInput{}, errors.Wrapf(ErrUnknownEntityType, "%q", t)
	}
	in := domain.UpdateInput{Connect: map[string]domain.Connection{}}
	for _, rel := range s.Relationships {
		if !row.Has(rel.Field) {
			continue
		}
		ids := record.ExtractIDs(row[rel.Field])
		if len(ids) == 0 {
			continue
		}
		for i, id := range ids {
			ids[i] = mapping.Resolve(id)
		}
		if !rel.Many {
			ids = ids[:1]
		}
		in.Connect[rel.Field] = domain.Connection{IDs: ids, Many: rel.Many}
	}
	if s.Document != "" && row.Has(s.Document) {
		doc, ok := documentString(row[s.Document])
		if ok {
			rewritten, n, err := r.RewriteDiagramDocument(doc, mapping)
			if err != nil {
				return domain.UpdateInput{}, errors.Wrapf(err, "%s", s.Document)
			}
			if n > 0 {
				in.Set = map[string]any{s.Document: rewritten}
			}
		}
	}
	return in, nil
}

// RewriteDiagramDocument replaces every entity reference embedded in a
// diagram's element metadata with its mapped id. It returns the new document
// and the number of references that changed.
func (r *Resolver) RewriteDiagramDocument(doc string, mapping *IdentifierMapping) (string, int, error) {
	if !gjson.Valid(doc) {
		return "", 0, ErrInvalidDocument
	}
	elements := gjson.Get(doc, "elements")
	if !elements.IsArray() {
		return doc, 0, nil
	}
	var ops []map[string]any
	i := 0
	elements.ForEach(func(_, el gjson.Result) bool {
		for _, key := range documentRefKeys {
			ref := el.Get("customData." + key)
			if ref.Type != gjson.String {
				continue
			}
			if mapped := mapping.Resolve(ref.String()); mapped != ref.String() {
				ops = append(ops, map[string]any{
					"op":    "replace",
					"path":  fmt.Sprintf("/elements/%d/customData/%s", i, key),
					"value": mapped,
				})
			}
		}
		i++
		return true
	})
	if len(ops) == 0 {
		return doc, 0, nil
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return "", 0, err
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return "", 0, errors.Wrap(err, "decode patch")
	}
	out, err := patch.Apply([]byte(doc))
	if err != nil {
		return "", 0, errors.Wrap(err, "apply patch")
	}
	return string(out), len(ops), nil
}
