package components

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/events"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

const (
	syncLogsCollection   = "sync_logs"
	auditTrailCollection = "audit_trail"

	eventSyncStarted     = "sync_started"
	eventSyncCompleted   = "sync_completed"
	eventRecordProcessed = "record_processed"
)

// MongoSyncLogger persists batch-lifecycle and per-record events to
// sync_logs and fans batch lifecycle out on the event bus for downstream
// consumers. The bus is optional; without it the logger is Mongo-only.
type MongoSyncLogger struct {
	store *store.Store
	bus   events.Publisher
	log   *logger.Logger
}

// NewMongoSyncLogger creates a sync logger. bus may be nil.
func NewMongoSyncLogger(s *store.Store, bus events.Publisher, log *logger.Logger) *MongoSyncLogger {
	return &MongoSyncLogger{store: s, bus: bus, log: log}
}

// LogSyncStart records the batch-started lifecycle event.
func (l *MongoSyncLogger) LogSyncStart(ctx context.Context, batch *domain.SyncBatch) error {
	entry := SyncLogEntry{
		ID: uuid.New(), BatchID: batch.ID, Source: batch.Source, EntityType: batch.EntityType,
		Event: eventSyncStarted, Metadata: batch.Metadata, Timestamp: time.Now().UTC(),
	}
	if err := l.insert(ctx, entry); err != nil {
		return err
	}
	l.publish(ctx, events.EventTypeSyncBatchStarted, batch, nil)
	l.log.Info().Str("source", batch.Source).Str("batch_id", batch.ID.String()).
		Str("entity_type", string(batch.EntityType)).Msg("sync started")
	return nil
}

// LogSyncComplete records the batch-completed lifecycle event with final
// counters.
func (l *MongoSyncLogger) LogSyncComplete(ctx context.Context, batch *domain.SyncBatch) error {
	counts := batch.Counts
	entry := SyncLogEntry{
		ID: uuid.New(), BatchID: batch.ID, Source: batch.Source, EntityType: batch.EntityType,
		Event: eventSyncCompleted, Status: string(batch.Status), Stats: &counts,
		Timestamp: time.Now().UTC(),
	}
	if err := l.insert(ctx, entry); err != nil {
		return err
	}
	l.publish(ctx, completionEventType(batch.Status), batch, &counts)
	l.log.Info().Str("source", batch.Source).Str("batch_id", batch.ID.String()).
		Str("status", string(batch.Status)).
		Int("processed", counts.Processed).Int("created", counts.Created).
		Int("updated", counts.Updated).Int("failed", counts.Failed).
		Msg("sync completed")
	return nil
}

// LogRecordProcessed records one per-record outcome.
func (l *MongoSyncLogger) LogRecordProcessed(ctx context.Context, batchID uuid.UUID, sourceID, status, errMsg string) error {
	entry := SyncLogEntry{
		ID: uuid.New(), BatchID: batchID, Event: eventRecordProcessed,
		SourceID: sourceID, Status: status, Error: errMsg, Timestamp: time.Now().UTC(),
	}
	if errMsg != "" {
		l.log.Warn().Str("batch_id", batchID.String()).Str("source_id", sourceID).
			Str("status", status).Str("error", errMsg).Msg("record failed")
	}
	return l.insert(ctx, entry)
}

// LogAudit writes one audit-trail entry.
func (l *MongoSyncLogger) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if _, err := l.store.Collection(auditTrailCollection).InsertOne(ctx, entry); err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreError, "audit write failed")
	}
	return nil
}

// GetSyncHistory returns completed-sync lifecycle events, newest first.
func (l *MongoSyncLogger) GetSyncHistory(ctx context.Context, source string, limit int64) ([]SyncLogEntry, error) {
	filter := bson.M{"event": eventSyncCompleted}
	if source != "" {
		filter["source"] = source
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := l.store.Collection(syncLogsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get sync history failed")
	}
	defer cursor.Close(ctx)

	var entries []SyncLogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode sync history failed")
	}
	return entries, nil
}

// PruneOlderThan deletes sync_logs events older than cutoff, bounding
// retention.
func (l *MongoSyncLogger) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.store.Collection(syncLogsCollection).DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStoreError, "prune sync logs failed")
	}
	return result.DeletedCount, nil
}

func (l *MongoSyncLogger) insert(ctx context.Context, entry SyncLogEntry) error {
	if _, err := l.store.Collection(syncLogsCollection).InsertOne(ctx, entry); err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreError, "sync log write failed")
	}
	return nil
}

// publish fans a batch lifecycle event out on the bus, best-effort.
func (l *MongoSyncLogger) publish(ctx context.Context, eventType events.EventType, batch *domain.SyncBatch, counts *domain.BatchCounts) {
	if l.bus == nil {
		return
	}
	data := map[string]interface{}{
		"source":      batch.Source,
		"entity_type": string(batch.EntityType),
		"status":      string(batch.Status),
	}
	if counts != nil {
		data["processed"] = counts.Processed
		data["created"] = counts.Created
		data["updated"] = counts.Updated
		data["failed"] = counts.Failed
	}
	if err := l.bus.Publish(ctx, events.NewEvent(eventType, batch.Source, batch.ID.String(), data)); err != nil {
		l.log.Warn().Err(err).Str("batch_id", batch.ID.String()).Msg("batch event publish failed")
	}
}

func completionEventType(status domain.BatchStatus) events.EventType {
	switch status {
	case domain.BatchCompleted:
		return events.EventTypeSyncBatchCompleted
	case domain.BatchPartial:
		return events.EventTypeSyncBatchPartial
	default:
		return events.EventTypeSyncBatchFailed
	}
}
