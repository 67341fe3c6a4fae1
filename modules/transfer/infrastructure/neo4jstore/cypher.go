package neo4jstore

import (
	"fmt"
	"strings"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

// importKeyProperty stores the idempotency key of the row that created a node.
const importKeyProperty = "importKey"

func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func nodeLabel(s *schema.Schema) string {
	return quote(s.GraphQL.Type)
}

func pattern(from string, r schema.Relationship, to string) string {
	return patternWhere(from, "", r, to, "")
}

// patternWhere renders (from)-[rel:REL]->(to:Label props) honouring direction.
func patternWhere(from, relVar string, r schema.Relationship, to, props string) string {
	rel := "[" + relVar + ":" + quote(r.Rel) + "]"
	target := to + ":" + quote(r.TargetLabel())
	if props != "" {
		target += " " + props
	}
	if r.Direction == schema.DirectionIn {
		return fmt.Sprintf("(%s)<-%s-(%s)", from, rel, target)
	}
	return fmt.Sprintf("(%s)-%s->(%s)", from, rel, target)
}

// projection renders n as a map of its catalog columns. Relationship fields
// come back as [{id}] lists, to-one fields as a single {id} map or null.
func projection(s *schema.Schema) string {
	parts := make([]string, 0, len(s.Columns(false)))
	for _, col := range s.Columns(false) {
		r, ok := s.Relationship(col)
		if !ok {
			parts = append(parts, "."+quote(col))
			continue
		}
		comp := fmt.Sprintf("[%s | m{.id}]", pattern("n", r, "m"))
		if r.Many {
			parts = append(parts, fmt.Sprintf("%s: %s", quote(col), comp))
		} else {
			parts = append(parts, fmt.Sprintf("%s: head(%s)", quote(col), comp))
		}
	}
	return "n{" + strings.Join(parts, ", ") + "}"
}

func createCypher(s *schema.Schema, keyed bool) string {
	if keyed {
		return fmt.Sprintf(`MERGE (n:%s {%s: $key})
ON CREATE SET n += $props, n.id = randomUUID()
RETURN %s AS node`, nodeLabel(s), importKeyProperty, projection(s))
	}
	return fmt.Sprintf(`CREATE (n:%s)
SET n += $props, n.id = randomUUID()
RETURN %s AS node`, nodeLabel(s), projection(s))
}

// updateCypher sets scalars and connects relationship fields in one
// statement. Connect ids are passed as $c0, $c1... in ConnectFields order.
// To-one fields drop their previous edge first; missing targets are skipped.
func updateCypher(s *schema.Schema, in domain.UpdateInput) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s {id: $id})\nSET n += $set\n", nodeLabel(s))
	for i, f := range in.ConnectFields() {
		r, ok := s.Relationship(f)
		if !ok {
			return "", fmt.Errorf("%s has no relationship %q", s.Type, f)
		}
		b.WriteString("WITH n\nCALL {\n  WITH n\n")
		if !r.Many {
			fmt.Fprintf(&b, "  OPTIONAL MATCH %s\n  DELETE old\n  WITH DISTINCT n\n",
				patternWhere("n", "old", r, "", ""))
		}
		fmt.Fprintf(&b, "  UNWIND $c%d AS tid\n  MATCH (m:%s {id: tid})\n  MERGE %s\n}\n",
			i, quote(r.TargetLabel()), mergePattern(r))
	}
	fmt.Fprintf(&b, "RETURN %s AS node", projection(s))
	return b.String(), nil
}

func mergePattern(r schema.Relationship) string {
	rel := "[:" + quote(r.Rel) + "]"
	if r.Direction == schema.DirectionIn {
		return "(n)<-" + rel + "-(m)"
	}
	return "(n)-" + rel + "->(m)"
}

func updateParams(id string, in domain.UpdateInput) map[string]any {
	set := in.Set
	if set == nil {
		set = map[string]any{}
	}
	params := map[string]any{"id": id, "set": set}
	for i, f := range in.ConnectFields() {
		c := in.Connect[f]
		ids := c.IDs
		if !c.Many && len(ids) > 1 {
			ids = ids[:1]
		}
		params[fmt.Sprintf("c%d", i)] = ids
	}
	return params
}

func existsCypher(s *schema.Schema) string {
	return fmt.Sprintf("MATCH (n:%s {id: $id})\nRETURN count(n) > 0 AS found", nodeLabel(s))
}

func getCypher(s *schema.Schema) string {
	return fmt.Sprintf("MATCH (n:%s {id: $id})\nRETURN %s AS node", nodeLabel(s), projection(s))
}

func scopeClause(s *schema.Schema, scope domain.Scope) (string, error) {
	if scope.IsZero() {
		return "", nil
	}
	r, ok := s.Relationship("company")
	if !ok {
		return "", fmt.Errorf("%s cannot be scoped to a company", s.Type)
	}
	return "\nWHERE exists { MATCH " + patternWhere("n", "", r, "", "{id: $companyId}") + " }", nil
}

func listCypher(s *schema.Schema, scope domain.Scope) (string, error) {
	where, err := scopeClause(s, scope)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH (n:%s)%s\nRETURN %s AS node\nORDER BY n.id", nodeLabel(s), where, projection(s)), nil
}

func deleteCypher(s *schema.Schema, scope domain.Scope) (string, error) {
	where, err := scopeClause(s, scope)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`MATCH (n:%s)%s
WITH collect(n) AS nodes, count(n) AS deleted
FOREACH (x IN nodes | DETACH DELETE x)
RETURN deleted`, nodeLabel(s), where), nil
}

func scopeParams(scope domain.Scope) map[string]any {
	if scope.IsZero() {
		return map[string]any{}
	}
	return map[string]any{"companyId": scope.CompanyID}
}
