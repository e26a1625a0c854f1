package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kilang-desa-murni/salesintel/internal/lake/canonical"
	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/raw"
	"github.com/kilang-desa-murni/salesintel/internal/lake/serving"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/internal/rbac"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// Manager is the data-lake manager: the single façade the external
// collaborator surface talks to.
type Manager struct {
	store     *store.Store
	raw       *raw.Zone
	canonical *canonical.Zone
	serving   *serving.Zone
	log       *logger.Logger
}

// New creates a Data-Lake Manager wired to its three zones.
func New(s *store.Store, r *raw.Zone, c *canonical.Zone, sv *serving.Zone, log *logger.Logger) *Manager {
	return &Manager{store: s, raw: r, canonical: c, serving: sv, log: log}
}

// IngestResult is the outcome of ingesting one record from a source.
type IngestResult struct {
	RawID       uuid.UUID
	CanonicalID uuid.UUID
	IsNew       bool
}

// IngestFromSource writes a record through Raw -> Canonical -> Audit and
// then best-effort refreshes Serving. The ordering is fixed; Serving
// failures are logged but never fail ingestion.
func (m *Manager) IngestFromSource(ctx context.Context, source string, entityType domain.EntityType, sourceID string, rawData map[string]interface{}, entity domain.Entity, batchID uuid.UUID, userID *uuid.UUID) (IngestResult, error) {
	rawID, err := m.raw.Store(ctx, source, entityType, sourceID, rawData, batchID, nil)
	if err != nil {
		return IngestResult{}, err
	}

	ref := domain.SourceRef{Source: source, SourceID: sourceID}
	canonicalID, isNew, err := m.canonical.Upsert(ctx, entityType, entity, ref, userID)
	if err != nil {
		return IngestResult{RawID: rawID}, err
	}

	action := domain.AuditSyncUpdate
	if isNew {
		action = domain.AuditSyncCreate
	}
	m.logAudit(ctx, entityType, canonicalID, action, domain.ZoneCanonical, source, userID, nil)

	env := entity.GetEnvelope()
	if env.OwnerID != nil {
		if _, err := m.serving.RefreshUserStats(ctx, *env.OwnerID, domain.PeriodDaily); err != nil {
			m.log.Warn().Err(err).Str("owner_id", env.OwnerID.String()).Msg("serving refresh after ingest failed")
		}
	}

	return IngestResult{RawID: rawID, CanonicalID: canonicalID, IsNew: isNew}, nil
}

// QueryEntities is the primary dashboard read: it delegates to the
// Canonical Zone with visibility enforcement applied.
func (m *Manager) QueryEntities(ctx context.Context, entityType domain.EntityType, caller rbac.CallerContext, filters bson.M, limit, skip int64, out interface{}) error {
	return m.canonical.FindWithVisibility(ctx, entityType, caller, filters, limit, skip, nil, out)
}

// GetEntity fetches a single entity by id, visibility-checked: the id must
// also satisfy the caller's visibility predicate.
func (m *Manager) GetEntity(ctx context.Context, entityType domain.EntityType, id uuid.UUID, caller rbac.CallerContext, out domain.Entity) error {
	visibility := rbac.Resolve(caller)
	query := rbac.Intersect(visibility, bson.M{"_id": id})
	var results []bson.Raw
	if err := m.canonical.Find(ctx, entityType, query, 1, 0, nil, &results); err != nil {
		return err
	}
	if len(results) == 0 {
		return m.canonical.GetByID(ctx, entityType, id, out) // surfaces a consistent not-found error
	}
	return bson.Unmarshal(results[0], out)
}

// DashboardData is the aggregate payload a dashboard read assembles from
// the four serving views.
type DashboardData struct {
	Stats        *domain.DashboardStats
	Pipeline     *domain.PipelineSummary
	ActivityFeed []domain.ActivityFeedEntry
	KPITrend     []domain.KPISnapshot
	ComputedAt   time.Time
}

// GetDashboardData aggregates four serving reads. The stats and the pipeline
// summary are refreshed on a miss; the activity feed and the KPI trend are
// returned as stored.
func (m *Manager) GetDashboardData(ctx context.Context, userID uuid.UUID, caller rbac.CallerContext, period domain.Period) (*DashboardData, error) {
	stats, err := m.serving.GetDashboardStats(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	pipelineQuery := rbac.Resolve(caller)
	pipeline, err := m.serving.GetPipelineSummary(ctx, userID, caller.Scope, pipelineQuery)
	if err != nil {
		return nil, err
	}
	feed, err := m.serving.GetActivityFeed(ctx, userID, 20, 0)
	if err != nil {
		return nil, err
	}
	trend, err := m.serving.GetKPITrend(ctx, userID, 30)
	if err != nil {
		return nil, err
	}
	return &DashboardData{
		Stats: stats, Pipeline: pipeline, ActivityFeed: feed, KPITrend: trend,
		ComputedAt: time.Now().UTC(),
	}, nil
}

// RefreshAllServingData rebuilds a user's serving-zone documents across all
// periods and their "own" pipeline summary, for on-demand full rebuilds.
func (m *Manager) RefreshAllServingData(ctx context.Context, userID uuid.UUID) error {
	for _, period := range []domain.Period{domain.PeriodDaily, domain.PeriodWeekly, domain.PeriodMonthly, domain.PeriodQuarterly, domain.PeriodYearly} {
		if _, err := m.serving.RefreshUserStats(ctx, userID, period); err != nil {
			return err
		}
	}
	ownQuery := rbac.Resolve(rbac.CallerContext{UserID: userID, Scope: domain.ScopeOwn})
	if _, err := m.serving.RefreshPipelineSummary(ctx, userID, domain.ScopeOwn, ownQuery); err != nil {
		return err
	}
	return nil
}

// MergeEntities merges secondary into primary (admin operation): SourceRef
// union, reference rewrite, secondary deletion — all transactional in the
// Canonical Zone — followed by an audit entry recording the merge.
func (m *Manager) MergeEntities(ctx context.Context, entityType domain.EntityType, primaryID, secondaryID uuid.UUID, userID *uuid.UUID) (uuid.UUID, error) {
	survivor, err := m.canonical.Merge(ctx, entityType, primaryID, secondaryID)
	if err != nil {
		return uuid.Nil, err
	}
	m.logAudit(ctx, entityType, survivor, domain.AuditMerge, domain.ZoneCanonical, "", userID,
		map[string]interface{}{"merged_from": secondaryID.String()})
	return survivor, nil
}

// DeleteEntity removes a canonical entity (admin operation) and records the
// deletion in the audit trail.
func (m *Manager) DeleteEntity(ctx context.Context, entityType domain.EntityType, id uuid.UUID, userID *uuid.UUID) error {
	if err := m.canonical.Delete(ctx, entityType, id); err != nil {
		return err
	}
	m.logAudit(ctx, entityType, id, domain.AuditDelete, domain.ZoneCanonical, "", userID, nil)
	return nil
}

// FindDuplicates surfaces candidate duplicates of an entity by natural key.
// It never merges; the decision stays with the admin caller.
func (m *Manager) FindDuplicates(ctx context.Context, entityType domain.EntityType, id uuid.UUID, email, name string) ([]canonical.DuplicateCandidate, error) {
	return m.canonical.FindDuplicates(ctx, entityType, id, email, name)
}

// StartSyncBatch delegates to the Raw Zone's batch lifecycle.
func (m *Manager) StartSyncBatch(ctx context.Context, source string, entityType domain.EntityType, metadata map[string]interface{}) (uuid.UUID, error) {
	return m.raw.CreateBatch(ctx, source, entityType, metadata)
}

// CompleteSyncBatch delegates to the Raw Zone's batch lifecycle.
func (m *Manager) CompleteSyncBatch(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, counts domain.BatchCounts, errs []domain.BatchError) error {
	return m.raw.CompleteBatch(ctx, batchID, status, counts, errs)
}

// GetSyncHistory returns recent batches for a source, newest first.
func (m *Manager) GetSyncHistory(ctx context.Context, source string, limit int64) ([]domain.SyncBatch, error) {
	return m.raw.GetBatches(ctx, source, limit)
}

// GetLastSyncTime returns the incremental watermark for a (source, entity-type).
func (m *Manager) GetLastSyncTime(ctx context.Context, source string, entityType domain.EntityType) (*time.Time, error) {
	return m.raw.LatestSyncTime(ctx, source, entityType)
}

// Canonical exposes the underlying Canonical Zone for callers (e.g. the
// pipeline) that need direct zone access beyond the manager's façade
// operations.
func (m *Manager) Canonical() *canonical.Zone { return m.canonical }

// Raw exposes the underlying Raw Zone.
func (m *Manager) Raw() *raw.Zone { return m.raw }

// Serving exposes the underlying Serving Zone.
func (m *Manager) Serving() *serving.Zone { return m.serving }
