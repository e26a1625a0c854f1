// Package worker implements the sync worker: scheduled plus queued job
// execution under a single-process cooperative model — a queue task and a
// scheduler task sharing one execution context — with incremental
// watermarks, stale-job recovery, and background health metrics.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/internal/sync/pipeline"
	"github.com/kilang-desa-murni/salesintel/pkg/config"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// Worker runs the job queue and the schedule scanner.
type Worker struct {
	store     *store.Store
	pipelines map[string]*pipeline.Pipeline
	cfg       config.SyncConfig
	log       *logger.Logger

	running atomic.Bool
}

// New creates a Worker. Pipelines are registered per source before Start.
func New(s *store.Store, cfg config.SyncConfig, log *logger.Logger) *Worker {
	return &Worker{
		store:     s,
		pipelines: make(map[string]*pipeline.Pipeline),
		cfg:       cfg,
		log:       log,
	}
}

// RegisterPipeline registers the pipeline driving one source.
func (w *Worker) RegisterPipeline(p *pipeline.Pipeline) {
	w.pipelines[p.Source()] = p
}

// Pipeline returns the registered pipeline for a source, if any.
func (w *Worker) Pipeline(source string) (*pipeline.Pipeline, bool) {
	p, ok := w.pipelines[source]
	return p, ok
}

// Start runs the queue task and the scheduler task until ctx is cancelled
// or Stop is called. Both tasks run to completion on graceful shutdown: the
// running flag stops new jobs from being claimed, a job already running
// processes all of its records, and the loops exit at their next wake-up.
func (w *Worker) Start(ctx context.Context) error {
	w.running.Store(true)
	w.log.Info().Msg("sync worker started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.processJobQueue(ctx) })
	g.Go(func() error { return w.runScheduledSyncs(ctx) })
	err := g.Wait()
	w.log.Info().Msg("sync worker stopped")
	if err == context.Canceled {
		return nil
	}
	return err
}

// Stop asks both tasks to finish their current work and exit.
func (w *Worker) Stop() {
	w.running.Store(false)
}

// IsRunning reports whether the worker is accepting work.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// processJobQueue is the queue task: it polls for the oldest pending job
// with the highest priority, atomically flips it to running, and executes
// it. An empty queue sleeps a short interval and retries.
func (w *Worker) processJobQueue(ctx context.Context) error {
	pollInterval := w.cfg.QueuePollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	for w.running.Load() {
		job, err := w.dequeue(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("job dequeue failed")
			if err := sleep(ctx, pollInterval); err != nil {
				return err
			}
			continue
		}
		if job == nil {
			if err := sleep(ctx, pollInterval); err != nil {
				return err
			}
			continue
		}
		w.executeJob(ctx, job)
	}
	return nil
}

// executeJob drives one job through its source's pipeline. An error is
// written onto the job; the worker continues either way.
func (w *Worker) executeJob(ctx context.Context, job *domain.SyncJob) {
	log := w.log.With().
		Str("job_id", job.ID.String()).
		Source(job.Source).
		Str("entity_type", string(job.EntityType)).
		Logger()
	log.Info().Str("mode", string(job.Mode)).Msg("executing sync job")

	p, ok := w.pipelines[job.Source]
	if !ok {
		w.completeJob(ctx, job.ID, domain.JobFailed, nil, "no pipeline registered for source "+job.Source)
		return
	}

	batch, err := p.Execute(ctx, job.EntityType, job.Mode, nil)
	if err != nil && batch == nil {
		log.Error().Err(err).Msg("sync job failed")
		w.completeJob(ctx, job.ID, domain.JobFailed, nil, err.Error())
		return
	}

	result := map[string]interface{}{
		"batch_id":  batch.ID.String(),
		"processed": batch.Counts.Processed,
		"created":   batch.Counts.Created,
		"updated":   batch.Counts.Updated,
		"failed":    batch.Counts.Failed,
	}
	status := domain.JobCompleted
	errMsg := ""
	if batch.Status != domain.BatchCompleted {
		// A partial batch made progress but the job still surfaces as
		// failed so operators notice; the batch record carries the detail.
		status = domain.JobFailed
		if err != nil {
			errMsg = err.Error()
		} else {
			errMsg = "batch finished with status " + string(batch.Status)
		}
	}
	w.completeJob(ctx, job.ID, status, result, errMsg)
	log.Info().Str("status", string(status)).Str("batch_status", string(batch.Status)).Msg("sync job finished")
}

// runScheduledSyncs is the scheduler task: once per minute it scans enabled
// schedules, enqueues due ones at scheduler priority, advances next-run by
// the schedule's interval, and sweeps stale running jobs back to pending.
func (w *Worker) runScheduledSyncs(ctx context.Context) error {
	interval := w.cfg.SchedulerInterval
	if interval <= 0 {
		interval = time.Minute
	}
	for w.running.Load() {
		if err := w.scanSchedules(ctx); err != nil {
			w.log.Error().Err(err).Msg("schedule scan failed")
		}
		w.requeueStaleJobs(ctx)
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) scanSchedules(ctx context.Context) error {
	cursor, err := w.store.Collection(syncSchedulesCollection).Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var schedules []domain.SyncSchedule
	if err := cursor.All(ctx, &schedules); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, schedule := range schedules {
		if schedule.NextRun.After(now) {
			continue
		}
		_, err := w.EnqueueSync(ctx, schedule.Source, schedule.EntityType, schedule.Mode, schedulerPriority,
			map[string]interface{}{"scheduled": true, "schedule_id": schedule.ID.String()})
		if err != nil {
			w.log.Error().Err(err).Str("schedule_id", schedule.ID.String()).Msg("scheduled enqueue failed")
			continue
		}

		interval := time.Duration(schedule.IntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = time.Hour
		}
		_, err = w.store.Collection(syncSchedulesCollection).UpdateOne(ctx,
			bson.M{"_id": schedule.ID},
			bson.M{"$set": bson.M{"next_run": now.Add(interval), "last_run": now}},
		)
		if err != nil {
			w.log.Error().Err(err).Str("schedule_id", schedule.ID.String()).Msg("schedule advance failed")
		}
	}
	return nil
}

// sleep waits for d, returning early with ctx.Err() on cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
