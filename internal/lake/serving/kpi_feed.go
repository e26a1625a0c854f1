package serving

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

// clamp bounds a percentage to a sane display range without discarding the
// raw achievement (goals can be overshot); only non-positive results are
// floored at zero.
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// RecordKPISnapshot appends a KPI observation, computing achievement_pct per
// key where the corresponding goal is present and > 0.
func (z *Zone) RecordKPISnapshot(ctx context.Context, userID uuid.UUID, kpis, goals map[string]float64) (*domain.KPISnapshot, error) {
	achievement := make(map[string]float64, len(kpis))
	for key, value := range kpis {
		goal, ok := goals[key]
		if !ok || goal <= 0 {
			continue
		}
		achievement[key] = clamp(value / goal * 100)
	}

	snapshot := &domain.KPISnapshot{
		ID:             uuid.New(),
		UserID:         userID,
		Date:           time.Now().UTC(),
		KPIs:           kpis,
		Goals:          goals,
		AchievementPct: achievement,
	}

	coll := z.store.Collection(kpiSnapshotsCollection)
	if _, err := coll.InsertOne(ctx, snapshot); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServingRefresh, "record kpi snapshot failed")
	}
	return snapshot, nil
}

// GetKPITrend returns the last `days` snapshots for a user, ordered by date
// ascending.
func (z *Zone) GetKPITrend(ctx context.Context, userID uuid.UUID, days int) ([]domain.KPISnapshot, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	coll := z.store.Collection(kpiSnapshotsCollection)
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := coll.Find(ctx, bson.M{"user_id": userID, "date": bson.M{"$gte": since}}, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get kpi trend failed")
	}
	defer cursor.Close(ctx)

	var snapshots []domain.KPISnapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode kpi trend failed")
	}
	return snapshots, nil
}

// AddActivityFeed appends one user-visible feed event.
func (z *Zone) AddActivityFeed(ctx context.Context, userID uuid.UUID, activityType, title, description string, entityType domain.EntityType, entityID *uuid.UUID) (uuid.UUID, error) {
	entry := domain.ActivityFeedEntry{
		ID: uuid.New(), UserID: userID, ActivityType: activityType,
		Title: title, Description: description,
		EntityType: entityType, EntityID: entityID,
		CreatedAt: time.Now().UTC(),
	}
	coll := z.store.Collection(activityFeedCollection)
	if _, err := coll.InsertOne(ctx, entry); err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeServingRefresh, "add activity feed entry failed")
	}
	return entry.ID, nil
}

// GetActivityFeed returns a user's feed, newest first.
func (z *Zone) GetActivityFeed(ctx context.Context, userID uuid.UUID, limit, skip int64) ([]domain.ActivityFeedEntry, error) {
	coll := z.store.Collection(activityFeedCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit).SetSkip(skip)
	cursor, err := coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get activity feed failed")
	}
	defer cursor.Close(ctx)

	var entries []domain.ActivityFeedEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode activity feed failed")
	}
	return entries, nil
}
