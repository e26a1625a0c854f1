// Package gateway is the thin HTTP binding of the external-collaborator
// interface: ingestion control, RBAC-scoped queries, and the audit trail.
// It never implements business logic of its own — every handler delegates
// to the data-lake manager or the sync worker. Caller identity arrives in
// headers set by the upstream API layer; authenticating it is that layer's
// job, not this one's.
package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kilang-desa-murni/salesintel/internal/integrations/crm"
	"github.com/kilang-desa-murni/salesintel/internal/integrations/erp"
	"github.com/kilang-desa-murni/salesintel/internal/integrations/local"
	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/manager"
	"github.com/kilang-desa-murni/salesintel/internal/mapping"
	"github.com/kilang-desa-murni/salesintel/internal/rbac"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/internal/sync/worker"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
	"github.com/kilang-desa-murni/salesintel/pkg/response"
	"github.com/kilang-desa-murni/salesintel/pkg/validator"
)

// Handler carries the gateway's dependencies.
type Handler struct {
	manager      *manager.Manager
	worker       *worker.Worker
	registry     *mapping.Registry
	local        *local.Writer
	syncLog      components.SyncLogger
	logRetention time.Duration
	validate     *validator.Validator
	log          *logger.Logger
}

// NewHandler creates the gateway handler set. logRetention bounds how far
// back sync_logs are kept when the prune maintenance call runs.
func NewHandler(m *manager.Manager, w *worker.Worker, reg *mapping.Registry, lw *local.Writer, syncLog components.SyncLogger, logRetention time.Duration, log *logger.Logger) *Handler {
	return &Handler{
		manager: m, worker: w, registry: reg, local: lw,
		syncLog: syncLog, logRetention: logRetention,
		validate: validator.New(), log: log,
	}
}

// callerContext assembles the RBAC caller context from the identity headers
// the API layer stamps on every forwarded request.
func callerContext(r *http.Request) (rbac.CallerContext, error) {
	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		return rbac.CallerContext{}, errors.ErrBadRequest("missing or malformed X-User-ID header")
	}
	ctx := rbac.CallerContext{
		UserID: userID,
		Role:   r.Header.Get("X-User-Role"),
		Scope:  domain.VisibilityScope(r.Header.Get("X-Visibility-Scope")),
	}
	if ctx.Scope == "" {
		ctx.Scope = domain.ScopeOwn
	}
	for _, raw := range strings.Split(r.Header.Get("X-Team-IDs"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return rbac.CallerContext{}, errors.ErrBadRequest("malformed team id: " + raw)
		}
		ctx.TeamIDs = append(ctx.TeamIDs, id)
	}
	if dept := r.Header.Get("X-Department-ID"); dept != "" {
		id, err := uuid.Parse(dept)
		if err != nil {
			return rbac.CallerContext{}, errors.ErrBadRequest("malformed department id")
		}
		ctx.DepartmentID = &id
	}
	return ctx, nil
}

func queryInt(r *http.Request, key string, fallback int64) int64 {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			return v
		}
	}
	return fallback
}

// --- Ingestion control ---

type enqueueRequest struct {
	Source     string                 `json:"source" validate:"required"`
	EntityType string                 `json:"entity_type" validate:"required"`
	Mode       string                 `json:"mode" validate:"omitempty,oneof=full incremental"`
	Priority   int                    `json:"priority" validate:"omitempty,min=1,max=10"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// EnqueueSync enqueues a sync job.
func (h *Handler) EnqueueSync(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := h.validate.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	mode := domain.SyncMode(req.Mode)
	if mode == "" {
		mode = domain.ModeIncremental
	}
	jobID, err := h.worker.EnqueueSync(r.Context(), req.Source, domain.EntityType(req.EntityType), mode, req.Priority, req.Metadata)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Accepted(w, map[string]string{"job_id": jobID.String()})
}

// GetJob returns one sync job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, errors.ErrBadRequest("malformed job id"))
		return
	}
	job, err := h.worker.GetJob(r.Context(), jobID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, job)
}

// CancelJob cancels a pending job.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, errors.ErrBadRequest("malformed job id"))
		return
	}
	if err := h.worker.CancelJob(r.Context(), jobID); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// ListJobs lists recent sync jobs, newest first.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.worker.ListJobs(r.Context(), r.URL.Query().Get("source"), queryInt(r, "limit", 50))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, jobs)
}

type scheduleRequest struct {
	Source          string `json:"source" validate:"required"`
	EntityType      string `json:"entity_type" validate:"required"`
	Mode            string `json:"mode" validate:"omitempty,oneof=full incremental"`
	IntervalMinutes int    `json:"interval_minutes" validate:"required,min=1"`
	Enabled         bool   `json:"enabled"`
}

// PutSchedule creates or replaces the recurring sync for a
// (source, entity-type).
func (h *Handler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := h.validate.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	mode := domain.SyncMode(req.Mode)
	if mode == "" {
		mode = domain.ModeIncremental
	}
	schedule, err := h.worker.UpsertSchedule(r.Context(), req.Source, domain.EntityType(req.EntityType), mode, req.IntervalMinutes, req.Enabled)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, schedule)
}

// ListSchedules lists every configured schedule.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.worker.ListSchedules(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, schedules)
}

// ListSyncHistory lists recent sync batches.
func (h *Handler) ListSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	history, err := h.manager.GetSyncHistory(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, history)
}

// ReplayBatch reprocesses a prior batch through the post-raw pipeline.
func (h *Handler) ReplayBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		response.Error(w, errors.ErrBadRequest("malformed batch id"))
		return
	}
	batch, err := h.manager.Raw().GetBatch(r.Context(), batchID)
	if err != nil {
		response.Error(w, err)
		return
	}
	p, ok := h.worker.Pipeline(batch.Source)
	if !ok {
		response.Error(w, errors.Newf(errors.ErrCodeNoPipeline, "no pipeline registered for source %s", batch.Source))
		return
	}
	newBatch, err := p.Replay(r.Context(), batchID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, newBatch)
}

// WorkerHealth reports the worker's health metrics.
func (h *Handler) WorkerHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.worker.Health(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, health)
}

type testSourceRequest struct {
	Source string                 `json:"source" validate:"required"`
	Config map[string]interface{} `json:"config" validate:"required"`
}

// TestSource probes connectivity for a source configuration without
// touching the registered pipelines.
func (h *Handler) TestSource(w http.ResponseWriter, r *http.Request) {
	var req testSourceRequest
	if err := h.validate.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	connector, err := connectorFor(req.Source, req.Config, h.log)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, connector.TestConnection(r.Context()))
}

// connectorFor builds a throwaway connector from an opaque config map. The
// core does not interpret credentials beyond handing them to the connector.
func connectorFor(source string, cfg map[string]interface{}, log *logger.Logger) (components.Connector, error) {
	str := func(key string) string {
		v, _ := cfg[key].(string)
		return v
	}
	switch source {
	case erp.SourceName:
		return erp.NewConnector(erp.Config{
			URL: str("url"), Database: str("database"),
			Username: str("username"), APIKey: str("api_key"),
		}, log), nil
	case crm.SourceName:
		return crm.NewConnector(crm.Config{
			InstanceURL: str("instance_url"), AccessToken: str("access_token"),
			APIVersion: str("api_version"),
		}, log), nil
	default:
		return nil, errors.ErrValidation("unknown source: " + source)
	}
}

// --- Queries ---

// entitySlice allocates the right concrete slice for decoding a query's
// results, dispatching on the entity-type tag.
func entitySlice(t domain.EntityType) (interface{}, bool) {
	switch t {
	case domain.EntityContact:
		return &[]domain.Contact{}, true
	case domain.EntityAccount:
		return &[]domain.Account{}, true
	case domain.EntityOpportunity:
		return &[]domain.Opportunity{}, true
	case domain.EntityActivity:
		return &[]domain.Activity{}, true
	case domain.EntityUser:
		return &[]domain.User{}, true
	}
	return nil, false
}

func entityValue(t domain.EntityType) (domain.Entity, bool) {
	switch t {
	case domain.EntityContact:
		return &domain.Contact{}, true
	case domain.EntityAccount:
		return &domain.Account{}, true
	case domain.EntityOpportunity:
		return &domain.Opportunity{}, true
	case domain.EntityActivity:
		return &domain.Activity{}, true
	case domain.EntityUser:
		return &domain.User{}, true
	}
	return nil, false
}

// QueryEntities is the primary dashboard read, visibility-scoped inside the
// core. Filters arrive as plain field=value query params.
func (h *Handler) QueryEntities(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	out, ok := entitySlice(entityType)
	if !ok {
		response.Error(w, errors.ErrBadRequest("unknown entity type: "+string(entityType)))
		return
	}
	caller, err := callerContext(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	filters := bson.M{}
	for key, values := range r.URL.Query() {
		switch key {
		case "limit", "skip":
			continue
		}
		if len(values) > 0 {
			filters[key] = values[0]
		}
	}

	limit := queryInt(r, "limit", 50)
	skip := queryInt(r, "skip", 0)
	if err := h.manager.QueryEntities(r.Context(), entityType, caller, filters, limit, skip, out); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, out)
}

// GetEntity fetches one entity, visibility-checked.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	out, ok := entityValue(entityType)
	if !ok {
		response.Error(w, errors.ErrBadRequest("unknown entity type: "+string(entityType)))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, errors.ErrBadRequest("malformed entity id"))
		return
	}
	caller, err := callerContext(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	if err := h.manager.GetEntity(r.Context(), entityType, id, caller, out); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, out)
}

// GetDashboard aggregates the four serving reads for a user.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	caller, err := callerContext(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	period := domain.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = domain.PeriodDaily
	}
	data, err := h.manager.GetDashboardData(r.Context(), caller.UserID, caller, period)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, data)
}

// GetActivityFeed returns a user's feed, newest first.
func (h *Handler) GetActivityFeed(w http.ResponseWriter, r *http.Request) {
	caller, err := callerContext(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	feed, err := h.manager.Serving().GetActivityFeed(r.Context(), caller.UserID, queryInt(r, "limit", 20), queryInt(r, "skip", 0))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, feed)
}

// GetKPITrend returns a user's KPI snapshots ordered by date ascending.
func (h *Handler) GetKPITrend(w http.ResponseWriter, r *http.Request) {
	caller, err := callerContext(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	days := int(queryInt(r, "days", 30))
	trend, err := h.manager.Serving().GetKPITrend(r.Context(), caller.UserID, days)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, trend)
}

// --- Audit and administration ---

// AuditTrail returns audit entries, optionally scoped by type and id.
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(r.URL.Query().Get("type"))
	var entityID *uuid.UUID
	if raw := r.URL.Query().Get("id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(w, errors.ErrBadRequest("malformed entity id"))
			return
		}
		entityID = &id
	}
	entries, err := h.manager.GetAuditTrail(r.Context(), entityType, entityID, queryInt(r, "limit", 100))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, entries)
}

// VerifyIntegrity runs the non-repairing integrity checks.
func (h *Handler) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.manager.VerifyDataIntegrity(r.Context(),
		domain.EntityType(r.URL.Query().Get("type")), r.URL.Query().Get("source"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, report)
}

// PruneSyncLogs deletes sync_logs events older than the configured
// retention. A maintenance call, not a background job — the worker's two
// long-running tasks stay the only resident loops.
func (h *Handler) PruneSyncLogs(w http.ResponseWriter, r *http.Request) {
	retention := h.logRetention
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := h.syncLog.PruneOlderThan(r.Context(), cutoff)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"deleted": deleted, "cutoff": cutoff})
}

type putMappingsRequest struct {
	Mappings []mapping.FieldMapping `json:"mappings" validate:"required,dive"`
}

// PutFieldMappings replaces the admin-configured field mappings for an
// (integration, entity-type) pair.
func (h *Handler) PutFieldMappings(w http.ResponseWriter, r *http.Request) {
	integration := chi.URLParam(r, "integration")
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	if !entityType.Valid() {
		response.Error(w, errors.ErrBadRequest("unknown entity type: "+string(entityType)))
		return
	}
	var req putMappingsRequest
	if err := h.validate.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if err := h.registry.Put(r.Context(), integration, entityType, req.Mappings); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"integration": integration,
		"entity_type": entityType,
		"count":       len(req.Mappings),
		"updated_at":  time.Now().UTC(),
	})
}
