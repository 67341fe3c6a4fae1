package graphql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

// operations holds the documents used for one entity type. They are built
// from the catalog once and syntax checked before the first call.
type operations struct {
	createField string
	updateField string
	deleteField string
	listField   string

	create Request
	update Request
	exists Request
	get    Request
	list   Request
	delete Request
}

func buildOperations(s *schema.Schema) (*operations, error) {
	typ := s.GraphQL.Type
	plural := s.GraphQL.Plural
	if typ == "" || plural == "" {
		return nil, errors.Errorf("%s: graphql names are not configured", s.Type)
	}
	pascal := upperFirst(plural)
	selection := selectionSet(s)

	ops := &operations{
		createField: "create" + pascal,
		updateField: "update" + pascal,
		deleteField: "delete" + pascal,
		listField:   plural,
	}
	ops.create = Request{
		OperationName: "Create" + pascal,
		Query: fmt.Sprintf(`mutation Create%[1]s($input: [%[2]sCreateInput!]!) {
  create%[1]s(input: $input) {
    %[3]s { id }
  }
}`, pascal, typ, plural),
	}
	ops.update = Request{
		OperationName: "Update" + pascal,
		Query: fmt.Sprintf(`mutation Update%[1]s($id: ID!, $update: %[2]sUpdateInput) {
  update%[1]s(where: { id: { eq: $id } }, update: $update) {
    %[3]s { id }
  }
}`, pascal, typ, plural),
	}
	ops.exists = Request{
		OperationName: "Exists" + pascal,
		Query: fmt.Sprintf(`query Exists%[1]s($id: ID!) {
  %[2]s(where: { id: { eq: $id } }, limit: 1) { id }
}`, pascal, plural),
	}
	ops.get = Request{
		OperationName: "Get" + pascal,
		Query: fmt.Sprintf(`query Get%[1]s($id: ID!) {
  %[2]s(where: { id: { eq: $id } }, limit: 1) {
%[3]s
  }
}`, pascal, plural, selection),
	}
	ops.list = Request{
		OperationName: "List" + pascal,
		Query: fmt.Sprintf(`query List%[1]s($where: %[2]sWhere) {
  %[3]s(where: $where) {
%[4]s
  }
}`, pascal, typ, plural, selection),
	}
	ops.delete = Request{
		OperationName: "Delete" + pascal,
		Query: fmt.Sprintf(`mutation Delete%[1]s($where: %[2]sWhere) {
  delete%[1]s(where: $where) { nodesDeleted }
}`, pascal, typ),
	}

	for _, r := range []Request{ops.create, ops.update, ops.exists, ops.get, ops.list, ops.delete} {
		if err := checkDocument(r); err != nil {
			return nil, errors.Wrapf(err, "%s", s.Type)
		}
	}
	return ops, nil
}

func checkDocument(r Request) error {
	doc, err := parser.ParseQuery(&ast.Source{Name: r.OperationName, Input: r.Query})
	if err != nil {
		return errors.Wrapf(err, "parse %s", r.OperationName)
	}
	if len(doc.Operations) != 1 || doc.Operations[0].Name != r.OperationName {
		return errors.Errorf("document %s must hold exactly the named operation", r.OperationName)
	}
	return nil
}

// selectionSet lists every catalog column; relationship fields select the
// id of the connected node only.
func selectionSet(s *schema.Schema) string {
	var b strings.Builder
	for _, col := range s.Columns(false) {
		b.WriteString("    ")
		b.WriteString(col)
		if s.Kind(col) == schema.KindRelationship {
			b.WriteString(" { id }")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
