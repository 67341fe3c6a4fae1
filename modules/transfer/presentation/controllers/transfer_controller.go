package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/form"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/formats"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/services"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/application"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/httpapi"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/middleware"
)

const defaultMaxUploadSize = 32 << 20

var formDecoder = form.NewDecoder()

type TransferControllerOptions struct {
	MaxUploadSize int64
	// Progress receives the progress of every import started over HTTP.
	Progress domain.ProgressFunc
	// ProgressStream, when set, is served at /progress.
	ProgressStream http.Handler
}

type uploadForm struct {
	EntityType string `form:"entityType"`
	DryRun     bool   `form:"dryRun"`
}

type TransferController struct {
	transfer  *services.TransferService
	opts      TransferControllerOptions
	apiPrefix string
}

func NewTransferController(app application.Application, opts TransferControllerOptions) application.Controller {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}
	return &TransferController{
		transfer:  app.Service(services.TransferService{}).(*services.TransferService),
		opts:      opts,
		apiPrefix: "/api/transfer",
	}
}

func (c *TransferController) Key() string {
	return c.apiPrefix
}

func (c *TransferController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	api.HandleFunc("/validate", c.Validate).Methods(http.MethodPost)
	api.HandleFunc("/import", c.Import).Methods(http.MethodPost)
	api.HandleFunc("/export", c.Export).Methods(http.MethodGet)
	if c.opts.ProgressStream != nil {
		api.Handle("/progress", c.opts.ProgressStream).Methods(http.MethodGet)
	}
	api.HandleFunc("/{entityType}", c.Delete).Methods(http.MethodDelete)
}

type importResponse struct {
	*services.ImportSummary
	Mapping map[string]string `json:"mapping,omitempty"`
}

type deleteQuery struct {
	CompanyID string `form:"companyId"`
	Confirm   bool   `form:"confirm"`
}

type deleteResponse struct {
	Target  string `json:"target"`
	Deleted int    `json:"deleted"`
}

// Validate parses the uploaded file and returns the validation report
// without touching the store.
func (c *TransferController) Validate(w http.ResponseWriter, r *http.Request) {
	f, fields, ok := c.readUpload(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.transfer.OnFileSelected(f, fields.entityType))
}

// Import runs the two-phase import. dryRun=true previews the run against an
// in-memory copy of the store.
func (c *TransferController) Import(w http.ResponseWriter, r *http.Request) {
	f, fields, ok := c.readUpload(w, r)
	if !ok {
		return
	}
	dryRun := fields.DryRun

	// the import finishes even if the client goes away
	ctx := context.WithoutCancel(r.Context())
	summary, err := c.transfer.RunImport(ctx, f, services.ImportSettings{EntityType: fields.entityType, DryRun: dryRun}, c.opts.Progress)
	if err != nil {
		if summary != nil && errors.Is(err, services.ErrValidationFailed) {
			writeJSON(w, http.StatusUnprocessableEntity, importResponse{ImportSummary: summary})
			return
		}
		writeServiceError(w, r, err)
		return
	}
	resp := importResponse{ImportSummary: summary}
	if summary.Mapping != nil && !dryRun {
		resp.Mapping = summary.Mapping.Map()
	}
	status := http.StatusOK
	if summary.HasFailures() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

// Export streams the requested entity types as a file download.
func (c *TransferController) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := formats.KindXLSX
	if v := q.Get("format"); v != "" {
		k, err := formats.ParseKind(v)
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "TRANSFER_UNSUPPORTED_FORMAT", err.Error())
			return
		}
		kind = k
	}
	types, err := services.ParseTypes(q.Get("types"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if kind == formats.KindCSV && len(types) != 1 {
		writeAPIError(w, r, http.StatusBadRequest, "TRANSFER_INVALID_REQUEST", "csv export holds exactly one entity type")
		return
	}
	f, err := c.transfer.RunExport(r.Context(), types, kind.Format(), scopeFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	name := fmt.Sprintf("eam-export-%s.%s", time.Now().UTC().Format("20060102-150405"), kind)
	httpapi.Attachment(w, kind.ContentType(), name)
	if err := formats.Write(w, f, kind); err != nil {
		middleware.UseLogger(r.Context()).WithError(err).Error("write export")
	}
}

// Delete removes every node of the entity type ("all" for every type) within
// the optional company scope. confirm=true is required.
func (c *TransferController) Delete(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["entityType"]
	var q deleteQuery
	if err := formDecoder.Decode(&q, r.URL.Query()); err != nil || !q.Confirm {
		writeServiceError(w, r, services.ErrDeleteNotConfirmed)
		return
	}
	n, err := c.transfer.RunDelete(r.Context(), target, domain.Scope{CompanyID: strings.TrimSpace(q.CompanyID)})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	middleware.UseLogger(r.Context()).WithFields(logrus.Fields{
		"target":  target,
		"deleted": n,
	}).Warn("bulk delete")
	writeJSON(w, http.StatusOK, deleteResponse{Target: target, Deleted: n})
}

type uploadFields struct {
	uploadForm
	entityType schema.EntityType
}

func (c *TransferController) readUpload(w http.ResponseWriter, r *http.Request) (*record.File, uploadFields, bool) {
	var fields uploadFields
	r.Body = http.MaxBytesReader(w, r.Body, c.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(c.opts.MaxUploadSize); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TRANSFER_INVALID_REQUEST", "multipart form with a file is required")
		return nil, fields, false
	}
	if err := formDecoder.Decode(&fields.uploadForm, r.MultipartForm.Value); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TRANSFER_INVALID_REQUEST", err.Error())
		return nil, fields, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TRANSFER_INVALID_REQUEST", "file is required")
		return nil, fields, false
	}
	defer func() { _ = file.Close() }()

	if v := strings.TrimSpace(fields.EntityType); v != "" {
		t, err := schema.FromTab(v)
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "TRANSFER_UNKNOWN_ENTITY_TYPE", err.Error())
			return nil, fields, false
		}
		fields.entityType = t
	}
	f, err := formats.Parse(file, header.Filename)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, fields, false
	}
	return f, fields, true
}

func scopeFrom(r *http.Request) domain.Scope {
	return domain.Scope{CompanyID: strings.TrimSpace(r.URL.Query().Get("companyId"))}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownEntityType):
		writeAPIError(w, r, http.StatusBadRequest, "TRANSFER_UNKNOWN_ENTITY_TYPE", err.Error())
	case errors.Is(err, formats.ErrUnsupportedFormat), errors.Is(err, services.ErrUnsupportedFormat):
		writeAPIError(w, r, http.StatusUnsupportedMediaType, "TRANSFER_UNSUPPORTED_FORMAT", err.Error())
	case errors.Is(err, services.ErrEmptyBatch):
		writeAPIError(w, r, http.StatusBadRequest, "TRANSFER_EMPTY_BATCH", err.Error())
	case errors.Is(err, services.ErrDeleteNotConfirmed):
		writeAPIError(w, r, http.StatusBadRequest, "TRANSFER_DELETE_NOT_CONFIRMED", "pass confirm=true to delete")
	case errors.Is(err, services.ErrValidationFailed):
		writeAPIError(w, r, http.StatusUnprocessableEntity, "TRANSFER_VALIDATION_FAILED", err.Error())
	case errors.Is(err, domain.ErrStoreNotConfigured):
		writeAPIError(w, r, http.StatusServiceUnavailable, "TRANSFER_STORE_UNAVAILABLE", err.Error())
	default:
		middleware.UseLogger(r.Context()).WithError(err).Error("transfer request failed")
		writeAPIError(w, r, http.StatusBadGateway, "TRANSFER_STORE_ERROR", services.ErrorMessage(err))
	}
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	_ = httpapi.WriteError(w, status, code, message, httpapi.Meta("request_id", middleware.UseRequestID(r.Context())))
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
