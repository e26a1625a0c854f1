package components

import (
	"context"

	"github.com/google/uuid"

	"github.com/kilang-desa-murni/salesintel/internal/lake/canonical"
	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/raw"
	"github.com/kilang-desa-murni/salesintel/internal/lake/serving"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
	"github.com/kilang-desa-murni/salesintel/pkg/resilience"
)

// ZoneLoader is the shared Loader implementation, writing straight to the
// three zones. Raw and canonical writes are independent; the pipeline
// guarantees the raw write happens first.
type ZoneLoader struct {
	raw       *raw.Zone
	canonical *canonical.Zone
	serving   *serving.Zone
	// refreshGate caps concurrent serving refreshes across jobs; a burst of
	// canonical writes must not pile aggregation load onto Mongo.
	refreshGate *resilience.Bulkhead
	log         *logger.Logger
}

// NewZoneLoader creates a loader over the three zones.
func NewZoneLoader(r *raw.Zone, c *canonical.Zone, s *serving.Zone, log *logger.Logger) *ZoneLoader {
	return &ZoneLoader{
		raw: r, canonical: c, serving: s,
		refreshGate: resilience.NewBulkhead(resilience.DefaultBulkheadConfig("serving-refresh")),
		log:         log,
	}
}

// LoadRaw writes one immutable raw record.
func (l *ZoneLoader) LoadRaw(ctx context.Context, rec domain.RawRecord) (uuid.UUID, error) {
	return l.raw.Store(ctx, rec.Source, rec.EntityType, rec.SourceID, rec.RawData, rec.SyncBatchID, rec.Metadata)
}

// LoadCanonical upserts the entity keyed by its SourceRefs (the newest
// observation's ref last), returning the canonical id and whether this
// observation created the entity.
func (l *ZoneLoader) LoadCanonical(ctx context.Context, entity domain.Entity) (uuid.UUID, bool, error) {
	env := entity.GetEnvelope()
	if len(env.Sources) == 0 {
		return uuid.Nil, false, errors.New(errors.ErrCodeValidationError, "entity has no source reference to upsert by")
	}
	ref := env.Sources[len(env.Sources)-1]
	return l.canonical.Upsert(ctx, env.EntityType, entity, ref, nil)
}

// LoadServing refreshes the owner's daily dashboard stats. Failures are the
// caller's to log; they never fail a record.
func (l *ZoneLoader) LoadServing(ctx context.Context, entity domain.Entity) error {
	env := entity.GetEnvelope()
	if env.OwnerID == nil {
		return nil
	}
	return l.refreshGate.ExecuteWithContext(ctx, func(ctx context.Context) error {
		_, err := l.serving.RefreshUserStats(ctx, *env.OwnerID, domain.PeriodDaily)
		return err
	})
}
