// Package store provides the durable document-store abstraction every zone
// of the data lake builds on: collection access, transactions, aggregation,
// and the atomic "find one and modify" primitive the sync worker uses to
// dequeue jobs.
package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/pkg/database"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// Store wraps the shared MongoDB connection and hands out named
// collections to the zone-specific repositories.
type Store struct {
	mongo *database.MongoDB
	log   *logger.Logger
}

// New creates a Store backed by the given MongoDB connection.
func New(mongo *database.MongoDB, log *logger.Logger) *Store {
	return &Store{mongo: mongo, log: log}
}

// Collection returns the named *mongo.Collection, the basic unit every
// zone repository wraps.
func (s *Store) Collection(name string) *mongo.Collection {
	return s.mongo.Collection(name)
}

// Database exposes the underlying *mongo.Database for aggregation helpers
// that need it directly.
func (s *Store) Database() *mongo.Database {
	return s.mongo.Database()
}

// Transaction runs fn inside a MongoDB multi-document transaction. Used by
// the canonical zone's merge operation, which must rewrite references
// across several collections atomically.
func (s *Store) Transaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	return s.mongo.Transaction(ctx, fn)
}

// EnsureIndexes creates the named indexes on collection, logging a summary.
// Idempotent: CreateMany on an already-existing equivalent index is a no-op.
func (s *Store) EnsureIndexes(ctx context.Context, collection string, indexes []mongo.IndexModel) error {
	return s.mongo.CreateIndexes(ctx, collection, indexes)
}

// DequeueOldestHighestPriority atomically flips the oldest, highest-priority
// document matching filter from its pending state to running, returning the
// pre-image decoded into out. A job queue read and its status flip must be
// a single atomic operation so two workers never both observe the same
// pending job.
//
// sort names the ordering applied before the pick (e.g. priority asc, then
// created_at asc).
func (s *Store) DequeueOldestHighestPriority(ctx context.Context, collection string, filter bson.M, update bson.M, sort bson.D, out interface{}) (bool, error) {
	opts := options.FindOneAndUpdate().
		SetSort(sort).
		SetReturnDocument(options.Before)

	err := s.Collection(collection).FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDBQuery, "dequeue failed")
	}
	return true, nil
}

// Aggregate runs pipeline against collection and decodes all results into out
// (a pointer to a slice).
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, out interface{}) error {
	cursor, err := s.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDBQuery, fmt.Sprintf("aggregate on %s failed", collection))
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeDBQuery, "decode aggregate results failed")
	}
	return nil
}
