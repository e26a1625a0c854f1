package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

const (
	syncJobsCollection      = "sync_jobs"
	syncSchedulesCollection = "sync_schedules"
)

// defaultPriority is the queue priority for manually enqueued jobs;
// scheduler-enqueued jobs run at schedulerPriority (higher).
const (
	defaultPriority   = 5
	schedulerPriority = 3
)

// EnqueueSync adds a pending sync job to the queue. Priority runs 1
// (highest) to 10 (lowest); 0 selects the default.
func (w *Worker) EnqueueSync(ctx context.Context, source string, entityType domain.EntityType, mode domain.SyncMode, priority int, metadata map[string]interface{}) (uuid.UUID, error) {
	if _, ok := w.pipelines[source]; !ok {
		return uuid.Nil, errors.Newf(errors.ErrCodeNoPipeline, "no pipeline registered for source %s", source)
	}
	if !entityType.Valid() {
		return uuid.Nil, errors.ErrValidation("unknown entity type: " + string(entityType))
	}
	if priority <= 0 {
		priority = defaultPriority
	}
	if priority > 10 {
		priority = 10
	}
	job := domain.SyncJob{
		ID: uuid.New(), Source: source, EntityType: entityType, Mode: mode,
		Priority: priority, Status: domain.JobPending,
		CreatedAt: time.Now().UTC(), Metadata: metadata,
	}
	if _, err := w.store.Collection(syncJobsCollection).InsertOne(ctx, job); err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeStoreError, "enqueue sync job failed")
	}
	w.log.Info().Str("job_id", job.ID.String()).Str("source", source).
		Str("entity_type", string(entityType)).Str("mode", string(mode)).
		Msg("sync job enqueued")
	return job.ID, nil
}

// GetJob looks up one job by id.
func (w *Worker) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := w.store.Collection(syncJobsCollection).FindOne(ctx, bson.M{"_id": jobID}).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeJobNotFound, "sync job not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get job failed")
	}
	return &job, nil
}

// CancelJob moves a job to cancelled, but only while it is still pending. A
// running job cannot be cancelled; it runs through all of its records, and
// the shutdown flag is checked only between jobs.
func (w *Worker) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	result, err := w.store.Collection(syncJobsCollection).UpdateOne(ctx,
		bson.M{"_id": jobID, "status": domain.JobPending},
		bson.M{"$set": bson.M{"status": domain.JobCancelled, "completed_at": time.Now().UTC()}},
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreError, "cancel job failed")
	}
	if result.ModifiedCount == 0 {
		job, err := w.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		return errors.Newf(errors.ErrCodeJobNotCancellable, "job is %s, only pending jobs can be cancelled", job.Status)
	}
	return nil
}

// ListJobs returns recent jobs, optionally filtered by source, newest first.
func (w *Worker) ListJobs(ctx context.Context, source string, limit int64) ([]domain.SyncJob, error) {
	filter := bson.M{}
	if source != "" {
		filter["source"] = source
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := w.store.Collection(syncJobsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "list jobs failed")
	}
	defer cursor.Close(ctx)

	var jobs []domain.SyncJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode jobs failed")
	}
	return jobs, nil
}

// dequeue atomically claims the oldest pending job with the highest
// priority (lowest numeric value), flipping it to running. Returns nil when
// the queue is empty. The find-and-modify is the only write-contended
// operation in the system and the store guarantees its atomicity, so two
// workers never both claim one job.
func (w *Worker) dequeue(ctx context.Context) (*domain.SyncJob, error) {
	now := time.Now().UTC()
	var job domain.SyncJob
	found, err := w.store.DequeueOldestHighestPriority(ctx, syncJobsCollection,
		bson.M{"status": domain.JobPending},
		bson.M{"$set": bson.M{"status": domain.JobRunning, "started_at": now}},
		bson.D{{Key: "priority", Value: 1}, {Key: "created_at", Value: 1}},
		&job,
	)
	if err != nil || !found {
		return nil, err
	}
	// The store returns the pre-image; reflect the flip locally.
	job.Status = domain.JobRunning
	job.StartedAt = &now
	return &job, nil
}

// completeJob writes the terminal status and result counters onto a job.
func (w *Worker) completeJob(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, result map[string]interface{}, jobErr string) {
	set := bson.M{
		"status":       status,
		"completed_at": time.Now().UTC(),
	}
	if result != nil {
		set["result"] = result
	}
	if jobErr != "" {
		set["error"] = jobErr
	}
	if _, err := w.store.Collection(syncJobsCollection).UpdateOne(ctx, bson.M{"_id": jobID}, bson.M{"$set": set}); err != nil {
		w.log.Error().Err(err).Str("job_id", jobID.String()).Msg("job completion write failed")
	}
}

// requeueStaleJobs returns jobs stuck in running past the lock TTL (a
// worker died mid-job) to pending so another dequeue can pick them up. The
// raw records the dead run already wrote stay in place; the rerun's upserts
// make the repeat harmless.
func (w *Worker) requeueStaleJobs(ctx context.Context) {
	if w.cfg.JobLockTTL <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-w.cfg.JobLockTTL)
	result, err := w.store.Collection(syncJobsCollection).UpdateMany(ctx,
		bson.M{"status": domain.JobRunning, "started_at": bson.M{"$lt": cutoff}},
		bson.M{
			"$set":   bson.M{"status": domain.JobPending, "metadata.requeued": true},
			"$unset": bson.M{"started_at": ""},
		},
	)
	if err != nil {
		w.log.Error().Err(err).Msg("stale job sweep failed")
		return
	}
	if result.ModifiedCount > 0 {
		w.log.Warn().Int64("count", result.ModifiedCount).Msg("requeued stale running jobs")
	}
}
