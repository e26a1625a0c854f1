package raw

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

const syncBatchesCollection = "sync_batches"

// CreateBatch starts a new SyncBatch in the running state.
func (z *Zone) CreateBatch(ctx context.Context, source string, entityType domain.EntityType, metadata map[string]interface{}) (uuid.UUID, error) {
	batch := domain.SyncBatch{
		ID:         uuid.New(),
		Source:     source,
		EntityType: entityType,
		StartedAt:  time.Now().UTC(),
		Status:     domain.BatchRunning,
		Metadata:   metadata,
	}
	coll := z.store.Collection(syncBatchesCollection)
	if _, err := coll.InsertOne(ctx, batch); err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeStoreError, "create batch failed")
	}
	return batch.ID, nil
}

// UpdateBatch applies an incremental $set update to a batch document, e.g.
// to track in-flight counters mid-run.
func (z *Zone) UpdateBatch(ctx context.Context, batchID uuid.UUID, set bson.M) error {
	coll := z.store.Collection(syncBatchesCollection)
	_, err := coll.UpdateOne(ctx, bson.M{"_id": batchID}, bson.M{"$set": set})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreError, "update batch failed")
	}
	return nil
}

// CompleteBatch finalizes a batch with its terminal status, counts, and
// bounded error list.
func (z *Zone) CompleteBatch(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, counts domain.BatchCounts, batchErrors []domain.BatchError) error {
	now := time.Now().UTC()
	coll := z.store.Collection(syncBatchesCollection)
	update := bson.M{
		"$set": bson.M{
			"completed_at": now,
			"status":       status,
			"counts":       counts,
			"errors":       batchErrors,
		},
	}
	_, err := coll.UpdateOne(ctx, bson.M{"_id": batchID}, update)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreError, "complete batch failed")
	}
	return nil
}

// GetBatch looks up a single batch by id.
func (z *Zone) GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.SyncBatch, error) {
	coll := z.store.Collection(syncBatchesCollection)
	var batch domain.SyncBatch
	err := coll.FindOne(ctx, bson.M{"_id": batchID}).Decode(&batch)
	if err == mongo.ErrNoDocuments {
		return nil, errors.ErrNotFound("sync batch")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get batch failed")
	}
	return &batch, nil
}

// GetBatches lists recent batches, optionally filtered by source, newest first.
func (z *Zone) GetBatches(ctx context.Context, source string, limit int64) ([]domain.SyncBatch, error) {
	filter := bson.M{}
	if source != "" {
		filter["source"] = source
	}
	coll := z.store.Collection(syncBatchesCollection)
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(limit)
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get batches failed")
	}
	defer cursor.Close(ctx)

	var batches []domain.SyncBatch
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode batches failed")
	}
	return batches, nil
}

// GetLastCompletedBatch returns the most recent completed or partial batch
// for a (source, entity-type). The pipeline's incremental watermark does not
// come from here; it uses LatestSyncTime.
func (z *Zone) GetLastCompletedBatch(ctx context.Context, source string, entityType domain.EntityType) (*domain.SyncBatch, error) {
	coll := z.store.Collection(syncBatchesCollection)
	filter := bson.M{
		"source":      source,
		"entity_type": entityType,
		"status":      bson.M{"$in": []domain.BatchStatus{domain.BatchCompleted, domain.BatchPartial}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	var batch domain.SyncBatch
	err := coll.FindOne(ctx, filter, opts).Decode(&batch)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get last completed batch failed")
	}
	return &batch, nil
}
