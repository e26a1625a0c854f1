package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

// UpsertSchedule creates or replaces the recurring sync configuration for a
// (source, entity-type). The first run is due one interval from now.
func (w *Worker) UpsertSchedule(ctx context.Context, source string, entityType domain.EntityType, mode domain.SyncMode, intervalMinutes int, enabled bool) (*domain.SyncSchedule, error) {
	if _, ok := w.pipelines[source]; !ok {
		return nil, errors.Newf(errors.ErrCodeNoPipeline, "no pipeline registered for source %s", source)
	}
	if intervalMinutes <= 0 {
		return nil, errors.ErrValidation("interval minutes must be positive")
	}
	schedule := domain.SyncSchedule{
		ID: uuid.New(), Source: source, EntityType: entityType, Mode: mode,
		IntervalMinutes: intervalMinutes,
		NextRun:         time.Now().UTC().Add(time.Duration(intervalMinutes) * time.Minute),
		Enabled:         enabled,
	}
	filter := bson.M{"source": source, "entity_type": entityType}
	existing := w.store.Collection(syncSchedulesCollection).FindOne(ctx, filter)
	var prior domain.SyncSchedule
	if err := existing.Decode(&prior); err == nil {
		schedule.ID = prior.ID
		schedule.LastRun = prior.LastRun
	}
	_, err := w.store.Collection(syncSchedulesCollection).ReplaceOne(ctx, filter, schedule, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStoreError, "upsert schedule failed")
	}
	return &schedule, nil
}

// ListSchedules returns every schedule, enabled or not.
func (w *Worker) ListSchedules(ctx context.Context) ([]domain.SyncSchedule, error) {
	cursor, err := w.store.Collection(syncSchedulesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "list schedules failed")
	}
	defer cursor.Close(ctx)

	var schedules []domain.SyncSchedule
	if err := cursor.All(ctx, &schedules); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode schedules failed")
	}
	return schedules, nil
}
