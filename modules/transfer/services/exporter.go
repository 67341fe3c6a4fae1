package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

// ExportTimeLayout is the timestamp format of exported date fields. The
// normalizer reads it back unchanged.
const ExportTimeLayout = time.RFC3339

type ExporterOptions struct {
	StoreCallTimeout time.Duration
	Logger           *logrus.Entry
}

func (o *ExporterOptions) setDefaults() {
	if o.StoreCallTimeout == 0 {
		o.StoreCallTimeout = 2 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
}

// Exporter flattens store records into rows the importer accepts again.
type Exporter struct {
	stores domain.StoreRegistry
	opts   ExporterOptions
}

func NewExporter(stores domain.StoreRegistry, opts ExporterOptions) *Exporter {
	opts.setDefaults()
	return &Exporter{stores: stores, opts: opts}
}

// Assemble maps store records to file rows. Tabular rows hold strings only,
// with relationships as comma-joined ids; JSON rows keep {id} objects.
func (e *Exporter) Assemble(records []domain.Record, t schema.EntityType, format record.Format) []record.RawRecord {
	s, ok := schema.Of(t)
	if !ok {
		return nil
	}
	tabular := format == record.FormatTabular
	out := make([]record.RawRecord, 0, len(records))
	for _, rec := range records {
		row := record.RawRecord{}
		for _, col := range s.Columns(tabular) {
			v := rec[col]
			if tabular {
				row[col] = tabularValue(s, col, v)
				continue
			}
			if jv := jsonValue(s, col, v); jv != nil {
				row[col] = jv
			}
		}
		out = append(out, row)
	}
	return out
}

func tabularValue(s *schema.Schema, col string, v any) string {
	switch s.Kind(col) {
	case schema.KindRelationship:
		return strings.Join(record.ExtractIDs(v), ",")
	case schema.KindDate:
		return formatDate(v)
	case schema.KindArray:
		return strings.Join(stringList(v, record.FormatJSON), ", ")
	}
	return record.Stringify(v)
}

func jsonValue(s *schema.Schema, col string, v any) any {
	if v == nil {
		return nil
	}
	switch s.Kind(col) {
	case schema.KindRelationship:
		rel, _ := s.Relationship(col)
		refs := references(v)
		if rel.Many {
			return refs
		}
		if len(refs) == 0 {
			return nil
		}
		return refs[0]
	case schema.KindDate:
		if d := formatDate(v); d != "" {
			return d
		}
		return nil
	case schema.KindArray:
		return stringList(v, record.FormatJSON)
	}
	return v
}

// references keeps the objects a store returned, so names travel along with
// ids, and wraps bare ids as {id}.
func references(v any) []map[string]any {
	out := []map[string]any{}
	add := func(item any) {
		if m, ok := item.(map[string]any); ok {
			if _, has := m["id"]; has {
				out = append(out, m)
			}
			return
		}
		for _, id := range record.ExtractIDs(item) {
			out = append(out, map[string]any{"id": id})
		}
	}
	switch x := v.(type) {
	case []map[string]any:
		for _, item := range x {
			add(item)
		}
	case []any:
		for _, item := range x {
			add(item)
		}
	default:
		add(x)
	}
	return out
}

func formatDate(v any) string {
	if t, ok := parseDate(v); ok {
		return t.Format(ExportTimeLayout)
	}
	return ""
}

// Export lists every given type within scope.
func (e *Exporter) Export(ctx context.Context, types []schema.EntityType, format record.Format, scope domain.Scope) (out map[schema.EntityType][]record.RawRecord, err error) {
	defer func() { recordRun("export", err) }()
	stores, err := domain.ResolveStores(e.stores, types)
	if err != nil {
		return nil, err
	}
	out = make(map[schema.EntityType][]record.RawRecord, len(types))
	for _, t := range types {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.StoreCallTimeout)
		start := time.Now()
		recs, err := stores[t].List(callCtx, scope)
		cancel()
		observeStoreCall(t, "list", err, time.Since(start))
		if err != nil {
			return nil, errors.Wrapf(err, "list %s", t)
		}
		out[t] = e.Assemble(recs, t, format)
		e.opts.Logger.WithFields(logrus.Fields{"entity_type": t, "rows": len(recs)}).Info("exported")
	}
	return out, nil
}

// ExportFile is Export shaped as a file: one tab per type, in the order given.
func (e *Exporter) ExportFile(ctx context.Context, types []schema.EntityType, format record.Format, scope domain.Scope) (*record.File, error) {
	rows, err := e.Export(ctx, types, format, scope)
	if err != nil {
		return nil, err
	}
	f := &record.File{Format: format}
	for _, t := range types {
		s := schema.MustOf(t)
		f.Tabs = append(f.Tabs, record.Tab{
			Name:    s.TabName(),
			Columns: s.Columns(format == record.FormatTabular),
			Records: rows[t],
		})
	}
	return f, nil
}
