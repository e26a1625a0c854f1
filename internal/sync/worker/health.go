package worker

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

// HealthStatus is the coarse worker health classification.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
	HealthStale    HealthStatus = "stale"
)

// LastOutcome records the newest success or failure observation.
type LastOutcome struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Health is the worker's published health snapshot.
type Health struct {
	IsRunning         bool         `json:"is_running"`
	IntervalMinutes   int          `json:"interval_minutes"`
	RecentFailures24h int          `json:"recent_failures_24h"`
	RecentSuccesses24h int         `json:"recent_successes_24h"`
	SuccessRate24h    float64      `json:"success_rate_24h"`
	LastSuccess       *LastOutcome `json:"last_success,omitempty"`
	LastFailure       *LastOutcome `json:"last_failure,omitempty"`
	Status            HealthStatus `json:"health"`
}

// classifyHealth applies the health rules:
// critical when the 24h success rate is under 50% with at least 3 failures;
// degraded when the rate is under 80% or anything failed in the last 2h;
// stale when nothing succeeded within twice the scheduling interval;
// healthy otherwise.
func classifyHealth(successRate float64, failures24h, failuresLast2h int, lastSuccess *time.Time, interval time.Duration, now time.Time) HealthStatus {
	switch {
	case successRate < 50 && failures24h >= 3:
		return HealthCritical
	case successRate < 80 || failuresLast2h >= 1:
		return HealthDegraded
	case lastSuccess == nil || now.Sub(*lastSuccess) > 2*interval:
		return HealthStale
	default:
		return HealthHealthy
	}
}

// Health computes the published worker health metrics from the last 24h of
// job outcomes.
func (w *Worker) Health(ctx context.Context) (*Health, error) {
	now := time.Now().UTC()
	dayAgo := now.Add(-24 * time.Hour)
	twoHoursAgo := now.Add(-2 * time.Hour)
	coll := w.store.Collection(syncJobsCollection)

	successes, err := coll.CountDocuments(ctx, bson.M{
		"status": domain.JobCompleted, "completed_at": bson.M{"$gte": dayAgo},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "health success count failed")
	}
	failures, err := coll.CountDocuments(ctx, bson.M{
		"status": domain.JobFailed, "completed_at": bson.M{"$gte": dayAgo},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "health failure count failed")
	}
	failuresLast2h, err := coll.CountDocuments(ctx, bson.M{
		"status": domain.JobFailed, "completed_at": bson.M{"$gte": twoHoursAgo},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "health recent failure count failed")
	}

	lastSuccess, err := w.lastJobOutcome(ctx, domain.JobCompleted)
	if err != nil {
		return nil, err
	}
	lastFailure, err := w.lastJobOutcome(ctx, domain.JobFailed)
	if err != nil {
		return nil, err
	}

	// An idle day counts as fully successful; staleness catches a worker
	// that stopped producing successes.
	successRate := 100.0
	if successes+failures > 0 {
		successRate = float64(successes) / float64(successes+failures) * 100
	}

	interval := w.cfg.SchedulerInterval
	if interval <= 0 {
		interval = time.Minute
	}
	staleWindow := w.cfg.HealthStaleAfter
	if staleWindow <= 0 {
		staleWindow = 2 * interval
	}

	var lastSuccessAt *time.Time
	if lastSuccess != nil {
		lastSuccessAt = &lastSuccess.Timestamp
	}
	health := &Health{
		IsRunning:          w.IsRunning(),
		IntervalMinutes:    int(interval / time.Minute),
		RecentFailures24h:  int(failures),
		RecentSuccesses24h: int(successes),
		SuccessRate24h:     successRate,
		LastSuccess:        lastSuccess,
		LastFailure:        lastFailure,
		Status:             classifyHealth(successRate, int(failures), int(failuresLast2h), lastSuccessAt, staleWindow/2, now),
	}
	return health, nil
}

func (w *Worker) lastJobOutcome(ctx context.Context, status domain.JobStatus) (*LastOutcome, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "completed_at", Value: -1}})
	var job domain.SyncJob
	err := w.store.Collection(syncJobsCollection).FindOne(ctx, bson.M{"status": status}, opts).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "last job outcome lookup failed")
	}
	outcome := &LastOutcome{Error: job.Error}
	if job.CompletedAt != nil {
		outcome.Timestamp = *job.CompletedAt
	}
	return outcome, nil
}
