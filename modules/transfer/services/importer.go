package services

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

const (
	createShare = 70.0

	phaseCreate        = "create"
	phaseRelationships = "relationships"
)

type EntityResult struct {
	EntityType schema.EntityType `json:"entityType"`
	Tab        string            `json:"tab,omitempty"`

	Imported int      `json:"imported"`
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`

	// Relationship failures are a separate class: the row itself exists.
	RelationshipsUpdated int      `json:"relationshipsUpdated"`
	RelationshipFailed   int      `json:"relationshipFailed"`
	RelationshipErrors   []string `json:"relationshipErrors"`
}

type BatchResult struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	TotalImported           int `json:"totalImported"`
	TotalFailed             int `json:"totalFailed"`
	TotalRelationshipFailed int `json:"totalRelationshipFailed"`

	Results    []*EntityResult    `json:"results"`
	Validation *ValidationResult  `json:"validation,omitempty"`
	Mapping    *IdentifierMapping `json:"-"`
}

// HasFailures reports whether any row failed in either phase.
func (r *BatchResult) HasFailures() bool {
	return r.TotalFailed > 0 || r.TotalRelationshipFailed > 0
}

func (r *BatchResult) total() {
	r.TotalImported, r.TotalFailed, r.TotalRelationshipFailed = 0, 0, 0
	for _, e := range r.Results {
		r.TotalImported += e.Imported
		r.TotalFailed += e.Failed
		r.TotalRelationshipFailed += e.RelationshipFailed
	}
}

// Importer runs the two-phase import: rows are created or matched one at a
// time while an original id -> store id table is built, then relationship
// columns are attached through that table.
type Importer struct {
	stores     domain.StoreRegistry
	normalizer *Normalizer
	resolver   *Resolver
	validator  *Validator
	opts       ImporterOptions
}

func NewImporter(stores domain.StoreRegistry, opts ImporterOptions) *Importer {
	opts.setDefaults()
	return &Importer{
		stores:     stores,
		normalizer: NewNormalizer(opts.Now),
		resolver:   NewResolver(),
		validator:  NewValidator(),
		opts:       opts,
	}
}

// Import runs a batch holding records of a single entity type.
func (i *Importer) Import(ctx context.Context, t schema.EntityType, records []record.RawRecord, format record.Format, onProgress domain.ProgressFunc) (*BatchResult, error) {
	s, ok := schema.Of(t)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntityType, "%q", t)
	}
	return i.ImportBatch(ctx, Batch{
		Format: format,
		Tabs:   []BatchTab{{Name: s.TabName(), EntityType: t, Records: records}},
	}, onProgress)
}

// ImportBatch never stops at a failing row. Row failures are returned as data
// in the result; the error is reserved for batches that cannot start and for
// cancellation, in which case the partial result is returned as well.
func (i *Importer) ImportBatch(ctx context.Context, batch Batch, onProgress domain.ProgressFunc) (res *BatchResult, err error) {
	if batch.RowCount() == 0 {
		return nil, ErrEmptyBatch
	}
	stores, err := domain.ResolveStores(i.stores, batch.Types())
	if err != nil {
		return nil, err
	}

	run := &importRun{
		Importer: i,
		batch:    batch,
		stores:   stores,
		progress: onProgress,
		result: &BatchResult{
			RunID:     uuid.NewString(),
			StartedAt: i.opts.Now(),
		},
	}
	run.log = i.opts.Logger.WithFields(logrus.Fields{
		"run_id": run.result.RunID,
		"format": batch.Format,
		"rows":   batch.RowCount(),
	})
	defer func() { recordRun("import", err) }()

	if i.opts.StrictValidation {
		v := i.validator.ValidateTabs(batch.Tabs, batch.Format)
		if !v.IsValid {
			run.result.Validation = &v
			run.result.FinishedAt = i.opts.Now()
			return run.result, errors.Wrapf(ErrValidationFailed, "%d errors", len(v.Errors))
		}
	}

	ctx, span := tracer.Start(ctx, "transfer.import", trace.WithAttributes(
		attribute.String("transfer.run_id", run.result.RunID),
		attribute.Int("transfer.rows", batch.RowCount()),
		attribute.Int("transfer.tabs", len(batch.Tabs)),
	))
	defer span.End()

	err = run.execute(ctx)
	run.result.total()
	run.result.FinishedAt = i.opts.Now()
	span.SetAttributes(
		attribute.Int("transfer.imported", run.result.TotalImported),
		attribute.Int("transfer.failed", run.result.TotalFailed),
		attribute.Int("transfer.relationship_failed", run.result.TotalRelationshipFailed),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		run.log.WithError(err).Warn("import stopped early")
		return run.result, err
	}
	run.log.WithFields(logrus.Fields{
		"imported":            run.result.TotalImported,
		"failed":              run.result.TotalFailed,
		"relationship_failed": run.result.TotalRelationshipFailed,
	}).Info("import finished")
	return run.result, nil
}

// importRun is the state of one ImportBatch call.
type importRun struct {
	*Importer
	batch    Batch
	stores   map[schema.EntityType]domain.EntityStore
	progress domain.ProgressFunc
	log      *logrus.Entry
	result   *BatchResult

	tables []*IdentifierMapping
	// rowIDs[tab][row] is the node phase 1 assigned to a row that carries an id.
	rowIDs [][]string
}

func (r *importRun) execute(ctx context.Context) error {
	r.tables = make([]*IdentifierMapping, len(r.batch.Tabs))
	r.rowIDs = make([][]string, len(r.batch.Tabs))
	for ti, tab := range r.batch.Tabs {
		r.rowIDs[ti] = make([]string, len(tab.Records))
		r.result.Results = append(r.result.Results, &EntityResult{
			EntityType:         tab.EntityType,
			Tab:                tab.Name,
			Errors:             []string{},
			RelationshipErrors: []string{},
		})
		r.tables[ti] = NewIdentifierMapping()
	}

	r.report(domain.PhaseCreate, "", 0, r.batch.RowCount(), 0)
	if err := r.createAll(ctx); err != nil {
		r.result.Mapping = MergeMappings(r.tables...)
		return err
	}

	// every phase-1 table is complete before phase 2 reads the combined one
	r.result.Mapping = MergeMappings(r.tables...)
	r.log.WithField("mapped", r.result.Mapping.Len()).Info("creation phase finished")
	r.report(domain.PhaseRelationships, "", 0, 0, createShare)

	if err := r.resolveAll(ctx); err != nil {
		return err
	}
	r.report(domain.PhaseDone, "", r.batch.RowCount(), r.batch.RowCount(), 100)
	return nil
}

func (r *importRun) createAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "transfer.import.create")
	defer span.End()

	total := r.batch.RowCount()
	processed := 0
	for ti, tab := range r.batch.Tabs {
		res := r.result.Results[ti]
		store := r.stores[tab.EntityType]
		log := r.log.WithFields(logrus.Fields{"entity_type": tab.EntityType, "tab": tab.Name})
		log.WithField("rows", len(tab.Records)).Debug("creating rows")
		for ri, row := range tab.Records {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := r.createRow(ctx, store, tab, ri, row, r.tables[ti], res)
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, rowError(ri+1, ErrorMessage(err)))
				recordRow(tab.EntityType, phaseCreate, "failed")
				log.WithError(err).WithFields(logrus.Fields{
					"row":         ri + 1,
					"original_id": row.OriginalID(),
				}).Warn("row failed")
			} else if row.OriginalID() != "" {
				r.rowIDs[ti][ri] = id
			}
			processed++
			if err := r.pace(ctx, processed); err != nil {
				return err
			}
			if processed%r.opts.ProgressEvery == 0 {
				r.report(domain.PhaseCreate, tab.EntityType, processed, total, createShare*float64(processed)/float64(total))
			}
		}
	}
	return nil
}

// createRow matches the row to an existing node by its id or creates a new one,
// records the id mapping and returns the node id.
func (r *importRun) createRow(ctx context.Context, store domain.EntityStore, tab BatchTab, ri int, row record.RawRecord, table *IdentifierMapping, res *EntityResult) (string, error) {
	t := tab.EntityType
	in, err := r.normalizer.Normalize(row, t, r.batch.Format)
	if err != nil {
		return "", err
	}
	in.IdempotencyKey = positionedKey(in.IdempotencyKey, tab.Name, ri)
	if len(in.Notes) > 0 {
		r.log.WithFields(logrus.Fields{"entity_type": t, "original_id": in.OriginalID, "notes": in.Notes}).Debug("normalized with fallbacks")
	}

	if in.OriginalID != "" {
		var exists bool
		err := r.call(ctx, t, "exists", func(ctx context.Context) (err error) {
			exists, err = store.Exists(ctx, in.OriginalID)
			return err
		})
		if err != nil {
			return "", err
		}
		if exists {
			err := r.call(ctx, t, "update", func(ctx context.Context) error {
				_, err := store.Update(ctx, in.OriginalID, domain.UpdateInput{Set: in.Fields})
				return err
			})
			if err != nil {
				return "", err
			}
			table.Record(in.OriginalID, in.OriginalID)
			res.Updated++
			res.Imported++
			recordRow(t, phaseCreate, "updated")
			return in.OriginalID, nil
		}
	}

	var created domain.Record
	err = r.call(ctx, t, "create", func(ctx context.Context) (err error) {
		created, err = store.Create(ctx, domain.CreateInput{Fields: in.Fields, IdempotencyKey: in.IdempotencyKey})
		return err
	})
	if err != nil {
		return "", err
	}
	id := created.ID()
	if id == "" {
		return "", errors.New("store returned a record without id")
	}
	if !table.Record(in.OriginalID, id) && in.OriginalID != "" {
		r.log.WithFields(logrus.Fields{"entity_type": t, "original_id": in.OriginalID, "row": ri + 1}).
			Warn("id already mapped by an earlier row; references resolve to the first node")
	}
	res.Created++
	res.Imported++
	recordRow(t, phaseCreate, "created")
	return id, nil
}

func (r *importRun) resolveAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "transfer.import.relationships")
	defer span.End()

	total := 0
	for ti, tab := range r.batch.Tabs {
		if r.tables[ti].Len() > 0 {
			total += len(tab.Records)
		}
	}
	processed := 0
	for ti, tab := range r.batch.Tabs {
		own := r.tables[ti]
		if own.Len() == 0 {
			continue
		}
		res := r.result.Results[ti]
		store := r.stores[tab.EntityType]
		log := r.log.WithFields(logrus.Fields{"entity_type": tab.EntityType, "tab": tab.Name})
		for ri, row := range tab.Records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.resolveRow(ctx, store, tab.EntityType, row, r.rowIDs[ti][ri], res); err != nil {
				res.RelationshipFailed++
				res.RelationshipErrors = append(res.RelationshipErrors, rowError(ri+1, ErrorMessage(err)))
				recordRow(tab.EntityType, phaseRelationships, "failed")
				log.WithError(err).WithFields(logrus.Fields{
					"row":         ri + 1,
					"original_id": row.OriginalID(),
				}).Warn("relationships not attached")
			}
			processed++
			if err := r.pace(ctx, processed); err != nil {
				return err
			}
			if processed%r.opts.ProgressEvery == 0 {
				r.report(domain.PhaseRelationships, tab.EntityType, processed, total, createShare+(100-createShare)*float64(processed)/float64(total))
			}
		}
	}
	return nil
}

// resolveRow attaches the relationships of one row to the node phase 1 gave
// it. References go through the combined table.
func (r *importRun) resolveRow(ctx context.Context, store domain.EntityStore, t schema.EntityType, row record.RawRecord, id string, res *EntityResult) error {
	if id == "" {
		return nil
	}
	payload, err := r.resolver.BuildRelationshipPayload(t, row, r.result.Mapping)
	if err != nil {
		return err
	}
	if payload.IsEmpty() {
		return nil
	}
	err = r.call(ctx, t, "update", func(ctx context.Context) error {
		_, err := store.Update(ctx, id, payload)
		return err
	})
	if err != nil {
		return err
	}
	res.RelationshipsUpdated++
	recordRow(t, phaseRelationships, "updated")
	return nil
}

// call runs one store call detached from the batch's cancellation so an
// in-flight mutation always completes and its id gets recorded.
func (r *importRun) call(ctx context.Context, t schema.EntityType, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.StoreCallTimeout)
	defer cancel()
	start := time.Now()
	err := fn(callCtx)
	observeStoreCall(t, op, err, time.Since(start))
	return err
}

func (r *importRun) pace(ctx context.Context, processed int) error {
	if processed%r.opts.YieldEvery != 0 {
		return nil
	}
	if r.opts.YieldPause <= 0 {
		runtime.Gosched()
		return nil
	}
	timer := time.NewTimer(r.opts.YieldPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *importRun) report(phase domain.Phase, t schema.EntityType, processed, total int, percent float64) {
	if r.progress == nil {
		return
	}
	r.log.WithFields(logrus.Fields{"phase": phase, "percent": percent}).Debug("progress")
	r.progress(domain.Progress{
		RunID:      r.result.RunID,
		Phase:      phase,
		EntityType: t,
		Processed:  processed,
		Total:      total,
		Percent:    percent,
	})
}
