package serving

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/pkg/database"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

const (
	dashboardStatsCollection   = "serving_dashboard_stats"
	pipelineSummaryCollection  = "serving_pipeline_summary"
	kpiSnapshotsCollection     = "serving_kpi_snapshots"
	activityFeedCollection     = "serving_activity_feed"

	defaultCacheTTL = 5 * time.Minute
)

// Zone is the Serving Zone: pre-aggregated, user-scoped views backed by
// MongoDB and fronted by a Redis cache-aside read path.
type Zone struct {
	store    *store.Store
	cache    *database.RedisClient
	cacheTTL time.Duration
	agg      *aggregator
	log      *logger.Logger
}

// New creates a Serving Zone. cache may be nil, in which case reads always
// go to MongoDB (used in tests and environments without Redis). cacheTTL
// bounds staleness of the Redis copy; zero selects the default.
func New(s *store.Store, cache *database.RedisClient, cacheTTL time.Duration, log *logger.Logger) *Zone {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Zone{store: s, cache: cache, cacheTTL: cacheTTL, agg: &aggregator{store: s}, log: log}
}

func statsCacheKey(userID uuid.UUID, period domain.Period) string {
	return fmt.Sprintf("serving:stats:%s:%s", userID, period)
}

func pipelineCacheKey(userID uuid.UUID, scope domain.VisibilityScope) string {
	return fmt.Sprintf("serving:pipeline:%s:%s", userID, scope)
}

// RefreshUserStats recomputes a user's DashboardStats for the given period
// from the Canonical Zone and writes it to both Mongo and the cache.
func (z *Zone) RefreshUserStats(ctx context.Context, userID uuid.UUID, period domain.Period) (*domain.DashboardStats, error) {
	now := time.Now().UTC()
	bounds := Bounds(period, now)

	accounts, err := z.agg.accountStats(ctx, userID, bounds)
	if err != nil {
		return nil, err
	}
	opportunities, err := z.agg.opportunityStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	activities, err := z.agg.activityStats(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	winRate, avgDealSize, conversionRate := derive(opportunities)

	stats := &domain.DashboardStats{
		UserID: userID, Period: period,
		AccountsTotal: accounts.Total, AccountsNew: accounts.New, AccountsActive: accounts.Active,
		OpportunitiesTotal: opportunities.Total, OpportunitiesOpen: opportunities.Open,
		OpportunitiesWon: opportunities.Won, OpportunitiesLost: opportunities.Lost,
		PipelineValue: opportunities.PipelineValue, WonValue: opportunities.WonValue,
		ActivitiesTotal: activities.Total, ActivitiesCompleted: activities.Completed,
		ActivitiesOverdue: activities.Overdue, ActivitiesUpcoming: activities.Upcoming,
		WinRate: winRate, AvgDealSize: avgDealSize, ConversionRate: conversionRate,
		ComputedAt: now,
	}

	coll := z.store.Collection(dashboardStatsCollection)
	filter := bson.M{"user_id": userID, "period": period}
	if _, err := coll.ReplaceOne(ctx, filter, stats, options.Replace().SetUpsert(true)); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServingRefresh, "persist dashboard stats failed")
	}
	if z.cache != nil {
		if err := z.cache.Set(ctx, statsCacheKey(userID, period), stats, z.cacheTTL); err != nil {
			z.log.Warn().Err(err).Msg("serving stats cache write failed")
		}
	}
	return stats, nil
}

// GetDashboardStats is a cached read, falling back to a just-in-time
// refresh when absent from both cache and Mongo.
func (z *Zone) GetDashboardStats(ctx context.Context, userID uuid.UUID, period domain.Period) (*domain.DashboardStats, error) {
	if z.cache != nil {
		var cached domain.DashboardStats
		if err := z.cache.Get(ctx, statsCacheKey(userID, period), &cached); err == nil {
			return &cached, nil
		}
	}

	coll := z.store.Collection(dashboardStatsCollection)
	var stats domain.DashboardStats
	err := coll.FindOne(ctx, bson.M{"user_id": userID, "period": period}).Decode(&stats)
	if err == mongo.ErrNoDocuments {
		return z.RefreshUserStats(ctx, userID, period)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get dashboard stats failed")
	}
	if z.cache != nil {
		_ = z.cache.Set(ctx, statsCacheKey(userID, period), stats, z.cacheTTL)
	}
	return &stats, nil
}

// RefreshPipelineSummary recomputes a user's PipelineSummary for a given
// visibility scope.
func (z *Zone) RefreshPipelineSummary(ctx context.Context, userID uuid.UUID, scope domain.VisibilityScope, query bson.M) (*domain.PipelineSummary, error) {
	now := time.Now().UTC()

	stages, err := z.agg.stageRollup(ctx, query)
	if err != nil {
		return nil, err
	}
	avgAge, err := z.agg.averageOpenAge(ctx, query, now)
	if err != nil {
		return nil, err
	}
	stalled, err := z.agg.stalledCount(ctx, query, now)
	if err != nil {
		return nil, err
	}

	summary := &domain.PipelineSummary{
		UserID: userID, Scope: scope, AverageAgeDays: avgAge, StalledCount: int(stalled), ComputedAt: now,
	}
	for _, s := range stages {
		summary.Stages = append(summary.Stages, domain.StageSummary{
			Stage: s.Stage, Count: s.Count, Value: s.Value, WeightedValue: s.Weighted,
		})
		summary.TotalCount += s.Count
		summary.TotalValue += s.Value
		summary.WeightedTotal += s.Weighted
	}

	coll := z.store.Collection(pipelineSummaryCollection)
	filter := bson.M{"user_id": userID, "scope": scope}
	if _, err := coll.ReplaceOne(ctx, filter, summary, options.Replace().SetUpsert(true)); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServingRefresh, "persist pipeline summary failed")
	}
	if z.cache != nil {
		if err := z.cache.Set(ctx, pipelineCacheKey(userID, scope), summary, z.cacheTTL); err != nil {
			z.log.Warn().Err(err).Msg("serving pipeline cache write failed")
		}
	}
	return summary, nil
}

// GetPipelineSummary is a cached read with just-in-time refresh fallback.
func (z *Zone) GetPipelineSummary(ctx context.Context, userID uuid.UUID, scope domain.VisibilityScope, query bson.M) (*domain.PipelineSummary, error) {
	if z.cache != nil {
		var cached domain.PipelineSummary
		if err := z.cache.Get(ctx, pipelineCacheKey(userID, scope), &cached); err == nil {
			return &cached, nil
		}
	}

	coll := z.store.Collection(pipelineSummaryCollection)
	var summary domain.PipelineSummary
	err := coll.FindOne(ctx, bson.M{"user_id": userID, "scope": scope}).Decode(&summary)
	if err == mongo.ErrNoDocuments {
		return z.RefreshPipelineSummary(ctx, userID, scope, query)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get pipeline summary failed")
	}
	if z.cache != nil {
		_ = z.cache.Set(ctx, pipelineCacheKey(userID, scope), summary, z.cacheTTL)
	}
	return &summary, nil
}
