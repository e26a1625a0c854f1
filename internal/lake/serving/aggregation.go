package serving

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

// aggregator computes the Serving Zone's aggregations directly from the
// Canonical Zone's collections.
type aggregator struct {
	store *store.Store
}

func ownerOrAssignee(userID uuid.UUID) bson.M {
	return bson.M{"$or": []bson.M{
		{"owner_id": userID},
		{"assigned_to": userID},
	}}
}

type accountAgg struct {
	Total  int `bson:"total"`
	New    int `bson:"new_count"`
	Active int `bson:"active"`
}

// accountStats computes the accounts rollup: total owned or assigned to
// user, new within the period, active.
func (a *aggregator) accountStats(ctx context.Context, userID uuid.UUID, bounds PeriodBounds) (accountAgg, error) {
	coll := a.store.Collection(domain.EntityAccount.CollectionName())
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: ownerOrAssignee(userID)}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": 1},
			"new_count": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$gte": bson.A{"$created_at", bounds.Start}},
					bson.M{"$lt": bson.A{"$created_at", bounds.End}},
				}}, 1, 0,
			}}},
			"active": bson.M{"$sum": bson.M{"$cond": bson.A{"$is_active", 1, 0}}},
		}}},
	}
	var results []accountAgg
	if err := a.store.Aggregate(ctx, coll.Name(), pipeline, &results); err != nil {
		return accountAgg{}, err
	}
	if len(results) == 0 {
		return accountAgg{}, nil
	}
	return results[0], nil
}

type opportunityAgg struct {
	Total         int     `bson:"total"`
	Open          int     `bson:"open"`
	Won           int     `bson:"won"`
	Lost          int     `bson:"lost"`
	PipelineValue float64 `bson:"pipeline_value"`
	WonValue      float64 `bson:"won_value"`
}

// opportunityStats computes the opportunities rollup via a single $group
// stage summing $cond expressions.
func (a *aggregator) opportunityStats(ctx context.Context, userID uuid.UUID) (opportunityAgg, error) {
	coll := a.store.Collection(domain.EntityOpportunity.CollectionName())
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: ownerOrAssignee(userID)}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": 1},
			"open":  bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$is_closed", false}}, 1, 0}}},
			"won":   bson.M{"$sum": bson.M{"$cond": bson.A{"$is_won", 1, 0}}},
			"lost": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{"$is_closed", bson.M{"$eq": bson.A{"$is_won", false}}}}, 1, 0,
			}}},
			"pipeline_value": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$is_closed", false}}, "$amount", 0,
			}}},
			"won_value": bson.M{"$sum": bson.M{"$cond": bson.A{"$is_won", "$amount", 0}}},
		}}},
	}
	var results []opportunityAgg
	if err := a.store.Aggregate(ctx, coll.Name(), pipeline, &results); err != nil {
		return opportunityAgg{}, err
	}
	if len(results) == 0 {
		return opportunityAgg{}, nil
	}
	return results[0], nil
}

type activityAgg struct {
	Total     int `bson:"total"`
	Completed int `bson:"completed"`
	Overdue   int `bson:"overdue"`
	Upcoming  int `bson:"upcoming"`
}

// activityStats computes the activities rollup. Overdue and upcoming are
// disjoint by construction: overdue requires due_date < now, upcoming
// requires due_date >= now.
func (a *aggregator) activityStats(ctx context.Context, userID uuid.UUID, now time.Time) (activityAgg, error) {
	coll := a.store.Collection(domain.EntityActivity.CollectionName())
	upcomingEnd := now.AddDate(0, 0, 7)
	notCompleted := bson.M{"$ne": bson.A{"$status", string(domain.ActivityStatusCompleted)}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: ownerOrAssignee(userID)}},
		{{Key: "$group", Value: bson.M{
			"_id":       nil,
			"total":     bson.M{"$sum": 1},
			"completed": bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", string(domain.ActivityStatusCompleted)}}, 1, 0}}},
			"overdue": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{notCompleted, bson.M{"$lt": bson.A{"$due_date", now}}}}, 1, 0,
			}}},
			"upcoming": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					notCompleted,
					bson.M{"$gte": bson.A{"$due_date", now}},
					bson.M{"$lt": bson.A{"$due_date", upcomingEnd}},
				}}, 1, 0,
			}}},
		}}},
	}
	var results []activityAgg
	if err := a.store.Aggregate(ctx, coll.Name(), pipeline, &results); err != nil {
		return activityAgg{}, err
	}
	if len(results) == 0 {
		return activityAgg{}, nil
	}
	return results[0], nil
}

// derive computes win-rate, avg-deal-size, and conversion-rate; an
// undefined ratio reports as zero.
func derive(opp opportunityAgg) (winRate, avgDealSize, conversionRate float64) {
	if opp.Won+opp.Lost > 0 {
		winRate = float64(opp.Won) / float64(opp.Won+opp.Lost) * 100
	}
	if opp.Won > 0 {
		avgDealSize = opp.WonValue / float64(opp.Won)
	}
	if opp.Total > 0 {
		conversionRate = float64(opp.Won) / float64(opp.Total) * 100
	}
	return
}

type stageAgg struct {
	Stage    domain.Stage `bson:"_id"`
	Count    int          `bson:"count"`
	Value    float64      `bson:"value"`
	Weighted float64      `bson:"weighted"`
}

// stageRollup groups open opportunities by stage, computing weighted value
// as amount x probability/100 via $multiply/$divide.
func (a *aggregator) stageRollup(ctx context.Context, query bson.M) ([]stageAgg, error) {
	coll := a.store.Collection(domain.EntityOpportunity.CollectionName())
	match := bson.M{"is_closed": false}
	for k, v := range query {
		match[k] = v
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$stage",
			"count": bson.M{"$sum": 1},
			"value": bson.M{"$sum": "$amount"},
			"weighted": bson.M{"$sum": bson.M{
				"$multiply": bson.A{"$amount", bson.M{"$divide": bson.A{"$probability", 100}}},
			}},
		}}},
	}
	var results []stageAgg
	if err := a.store.Aggregate(ctx, coll.Name(), pipeline, &results); err != nil {
		return nil, err
	}
	return results, nil
}

type ageAgg struct {
	AvgAgeDays float64 `bson:"avg_age_days"`
}

// averageOpenAge computes the average age in days of open opportunities
// using $subtract/$divide against now.
func (a *aggregator) averageOpenAge(ctx context.Context, query bson.M, now time.Time) (float64, error) {
	coll := a.store.Collection(domain.EntityOpportunity.CollectionName())
	match := bson.M{"is_closed": false}
	for k, v := range query {
		match[k] = v
	}
	const msPerDay = 86400000
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id": nil,
			"avg_age_days": bson.M{"$avg": bson.M{
				"$divide": bson.A{
					bson.M{"$subtract": bson.A{now, "$created_at"}},
					msPerDay,
				},
			}},
		}}},
	}
	var results []ageAgg
	if err := a.store.Aggregate(ctx, coll.Name(), pipeline, &results); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].AvgAgeDays, nil
}

// stalledCount counts open opportunities whose updated_at is older than
// StalledThreshold, or missing.
func (a *aggregator) stalledCount(ctx context.Context, query bson.M, now time.Time) (int64, error) {
	coll := a.store.Collection(domain.EntityOpportunity.CollectionName())
	match := bson.M{"is_closed": false}
	for k, v := range query {
		match[k] = v
	}
	threshold := now.Add(-StalledThreshold)
	stale := bson.M{"$or": []bson.M{
		{"updated_at": bson.M{"$lt": threshold}},
		{"updated_at": bson.M{"$exists": false}},
	}}
	count, err := coll.CountDocuments(ctx, bson.M{"$and": []bson.M{match, stale}})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDBQuery, "stalled count failed")
	}
	return count, nil
}
