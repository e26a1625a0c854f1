// Package raw implements the raw zone: an append-only store of immutable
// source records, keyed by (source, entity-type, source-id, ingest-time),
// with per-batch retrieval for replay. Each (source, entity-type) pair gets
// its own raw_<source>_<entitytype>s collection.
package raw

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// Zone is the Raw Zone repository.
type Zone struct {
	store *store.Store
	log   *logger.Logger
}

// New creates a Raw Zone repository.
func New(s *store.Store, log *logger.Logger) *Zone {
	return &Zone{store: s, log: log}
}

func collectionFor(source string, entityType domain.EntityType) string {
	return domain.RawCollectionName(source, entityType)
}

// Store inserts one immutable raw record. Never overwrites; the pipeline is
// responsible for the (batch-id, source, source-id) idempotency key, not
// the store.
func (z *Zone) Store(ctx context.Context, source string, entityType domain.EntityType, sourceID string, rawData map[string]interface{}, batchID uuid.UUID, metadata map[string]interface{}) (uuid.UUID, error) {
	rec := domain.RawRecord{
		RawID:       uuid.New(),
		Source:      source,
		EntityType:  entityType,
		SourceID:    sourceID,
		RawData:     rawData,
		IngestedAt:  time.Now().UTC(),
		SyncBatchID: batchID,
		Metadata:    metadata,
	}
	coll := z.store.Collection(collectionFor(source, entityType))
	if _, err := coll.InsertOne(ctx, rec); err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeStoreError, "raw store failed")
	}
	return rec.RawID, nil
}

// BulkStore inserts many raw records for the same (source, entity-type, batch)
// in a single batched write.
func (z *Zone) BulkStore(ctx context.Context, source string, entityType domain.EntityType, items []map[string]interface{}, sourceIDs []string, batchID uuid.UUID) (int, error) {
	if len(items) != len(sourceIDs) {
		return 0, errors.ErrValidation("items and sourceIDs length mismatch")
	}
	now := time.Now().UTC()
	docs := make([]interface{}, len(items))
	for i, data := range items {
		docs[i] = domain.RawRecord{
			RawID:       uuid.New(),
			Source:      source,
			EntityType:  entityType,
			SourceID:    sourceIDs[i],
			RawData:     data,
			IngestedAt:  now,
			SyncBatchID: batchID,
		}
	}
	if len(docs) == 0 {
		return 0, nil
	}
	coll := z.store.Collection(collectionFor(source, entityType))
	result, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStoreError, "raw bulk store failed")
	}
	return len(result.InsertedIDs), nil
}

// GetByBatch returns all raw records for a batch, in ingestion order. Used
// by replay to reconstruct the post-raw pipeline input.
func (z *Zone) GetByBatch(ctx context.Context, source string, entityType domain.EntityType, batchID uuid.UUID) ([]domain.RawRecord, error) {
	coll := z.store.Collection(collectionFor(source, entityType))
	opts := options.Find().SetSort(bson.D{{Key: "ingested_at", Value: 1}})
	cursor, err := coll.Find(ctx, bson.M{"sync_batch_id": batchID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get by batch failed")
	}
	defer cursor.Close(ctx)

	var records []domain.RawRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode raw records failed")
	}
	return records, nil
}

// GetLatestBySourceID returns the newest raw record for a given source id,
// or nil if none exists. "Newest ingest wins" is the only view downstream
// needs.
func (z *Zone) GetLatestBySourceID(ctx context.Context, source string, entityType domain.EntityType, sourceID string) (*domain.RawRecord, error) {
	coll := z.store.Collection(collectionFor(source, entityType))
	opts := options.FindOne().SetSort(bson.D{{Key: "ingested_at", Value: -1}})

	var rec domain.RawRecord
	err := coll.FindOne(ctx, bson.M{"source_id": sourceID}, opts).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get latest by source id failed")
	}
	return &rec, nil
}

// LatestSyncTime returns the max ingested_at across all raw records for a
// (source, entity-type), used as the incremental watermark. Implemented via
// a $group/$max aggregation rather than a single sorted find, since the
// watermark must reflect the true maximum even as the collection grows
// across many concurrent writers.
func (z *Zone) LatestSyncTime(ctx context.Context, source string, entityType domain.EntityType) (*time.Time, error) {
	coll := z.store.Collection(collectionFor(source, entityType))
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"max_ts":  bson.M{"$max": "$ingested_at"},
		}}},
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "latest sync time aggregation failed")
	}
	defer cursor.Close(ctx)

	var results []struct {
		MaxTS *time.Time `bson:"max_ts"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode latest sync time failed")
	}
	if len(results) == 0 || results[0].MaxTS == nil {
		return nil, nil
	}
	return results[0].MaxTS, nil
}

// CountRecords counts raw records for a (source, entity-type), optionally
// restricted to a batch.
func (z *Zone) CountRecords(ctx context.Context, source string, entityType domain.EntityType, batchID *uuid.UUID) (int64, error) {
	filter := bson.M{}
	if batchID != nil {
		filter["sync_batch_id"] = *batchID
	}
	coll := z.store.Collection(collectionFor(source, entityType))
	count, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDBQuery, "count records failed")
	}
	return count, nil
}

// DistinctSourceIDCount returns the number of distinct source ids observed
// in the newest ingest snapshot for a (source, entity-type) — i.e. one per
// source id, taking only its most recent record. Used by
// verify-data-integrity to compare against the canonical count.
func (z *Zone) DistinctSourceIDCount(ctx context.Context, source string, entityType domain.EntityType) (int64, error) {
	coll := z.store.Collection(collectionFor(source, entityType))
	ids, err := coll.Distinct(ctx, "source_id", bson.M{})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDBQuery, "distinct source id failed")
	}
	return int64(len(ids)), nil
}
