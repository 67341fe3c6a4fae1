package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/memstore"
)

// AllEntityTypes selects every entity type in RunDelete and ParseTypes.
const AllEntityTypes = "all"

type ImportSettings struct {
	// EntityType is used for files whose tabs do not name a type.
	EntityType schema.EntityType
	// DryRun writes to an in-memory copy; the real store is only read.
	DryRun bool
}

type ImportSummary struct {
	*BatchResult
	DryRun   bool               `json:"dryRun"`
	Skipped  []Finding          `json:"skipped,omitempty"`
	Previews []memstore.Preview `json:"previews,omitempty"`
}

// TransferService is the entry point the UI layer, the HTTP API and the CLI use.
type TransferService struct {
	stores    domain.StoreRegistry
	opts      ImporterOptions
	validator *Validator
	importer  *Importer
	exporter  *Exporter
	deleter   *Deleter
	log       *logrus.Entry
}

func NewTransferService(stores domain.StoreRegistry, opts ImporterOptions) *TransferService {
	opts.setDefaults()
	return &TransferService{
		stores:    stores,
		opts:      opts,
		validator: NewValidator(),
		importer:  NewImporter(stores, opts),
		exporter:  NewExporter(stores, ExporterOptions{Logger: opts.Logger}),
		deleter:   NewDeleter(stores, opts.Logger),
		log:       opts.Logger,
	}
}

// OnFileSelected validates a parsed file. Tabs that name no entity type are
// reported as warnings.
func (s *TransferService) OnFileSelected(f *record.File, t schema.EntityType) ValidationResult {
	batch, skipped := BatchFromFile(f, t)
	res := s.validator.ValidateTabs(batch.Tabs, batch.Format)
	res.Warnings = append(skipped, res.Warnings...)
	if len(batch.Tabs) == 1 && len(skipped) == 0 {
		// a single tab is reported on its own, without the per-tab breakdown
		single := *res.TabValidations[tabName(batch.Tabs[0])]
		single.Errors, single.Warnings = res.Errors, res.Warnings
		return single
	}
	return res
}

func tabName(t BatchTab) string {
	if t.Name == "" {
		return string(t.EntityType)
	}
	return t.Name
}

// RunImport imports a parsed file. Row failures are part of the summary;
// the error covers files that cannot be imported at all and cancellation.
func (s *TransferService) RunImport(ctx context.Context, f *record.File, settings ImportSettings, onProgress domain.ProgressFunc) (*ImportSummary, error) {
	batch, skipped := BatchFromFile(f, settings.EntityType)
	for _, w := range skipped {
		s.log.WithField("tab", w.Tab).Warn(w.Message)
	}
	if len(batch.Tabs) == 0 {
		return nil, errors.Wrap(ErrEmptyBatch, "no tab maps to an entity type")
	}
	importer := s.importer
	var overlay *memstore.Overlay
	if settings.DryRun {
		overlay = memstore.NewOverlay(s.stores)
		importer = NewImporter(overlay, s.opts)
		s.log.WithField("rows", batch.RowCount()).Info("dry run, store is read only")
	}
	res, err := importer.ImportBatch(ctx, batch, onProgress)
	if res == nil {
		return nil, err
	}
	summary := &ImportSummary{BatchResult: res, DryRun: settings.DryRun, Skipped: skipped}
	if overlay != nil {
		summary.Previews = overlay.Previews()
	}
	return summary, err
}

// RunExport reads the given types within scope into a file.
func (s *TransferService) RunExport(ctx context.Context, types []schema.EntityType, format record.Format, scope domain.Scope) (*record.File, error) {
	if len(types) == 0 {
		types = schema.All()
	}
	return s.exporter.ExportFile(ctx, types, format, scope)
}

// RunDelete deletes one entity type, or every type for "all", within scope.
func (s *TransferService) RunDelete(ctx context.Context, target string, scope domain.Scope) (int, error) {
	types, err := ParseTypes(target)
	if err != nil {
		return 0, err
	}
	return s.deleter.Delete(ctx, types, scope)
}

// ParseTypes accepts "all", a single type name or tab alias, or a comma
// separated list of them.
func ParseTypes(v string) ([]schema.EntityType, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, AllEntityTypes) {
		return schema.All(), nil
	}
	var out []schema.EntityType
	for _, part := range strings.Split(v, ",") {
		t, err := schema.FromTab(part)
		if err != nil {
			return nil, errors.Wrap(ErrUnknownEntityType, err.Error())
		}
		out = append(out, t)
	}
	return out, nil
}
